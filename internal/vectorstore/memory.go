package vectorstore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"quakeqa/internal/contextutil"
)

// MemoryStore implements VectorStore with brute-force cosine similarity over
// vectors held in process memory. With a non-empty dir, collections can be
// saved to and restored from <dir>/<collection>.gob.
type MemoryStore struct {
	mu          sync.RWMutex
	dir         string
	collections map[string]*memCollection
}

type memCollection struct {
	VectorSize int
	Entries    []memEntry
	index      map[string]int
}

type memEntry struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// NewMemoryStore creates an empty store. dir may be empty to disable persistence.
func NewMemoryStore(dir string) *MemoryStore {
	return &MemoryStore{
		dir:         dir,
		collections: make(map[string]*memCollection),
	}
}

// EnsureCollection creates the collection if missing and checks its vector size otherwise.
func (s *MemoryStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", vectorSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		if c.VectorSize != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, c.VectorSize)
		}
		return nil
	}

	s.collections[collection] = &memCollection{VectorSize: vectorSize, index: make(map[string]int)}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "collection created", "collection", collection, "vector_size", vectorSize)
	return nil
}

// CollectionExists reports whether the collection is in memory or saved on disk.
func (s *MemoryStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	s.mu.RLock()
	_, ok := s.collections[collection]
	s.mu.RUnlock()
	if ok || s.dir == "" {
		return ok, nil
	}

	_, err := os.Stat(s.path(collection))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check collection file: %w", err)
}

// DropCollection removes the collection from memory and disk.
func (s *MemoryStore) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	delete(s.collections, collection)
	s.mu.Unlock()

	if s.dir == "" {
		return nil
	}
	if err := os.Remove(s.path(collection)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove collection file: %w", err)
	}
	return nil
}

// Upsert inserts or updates points. An updated point keeps its original position.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("failed to upsert points into %s: %w", collection, ErrCollectionNotFound)
	}

	for _, p := range points {
		if len(p.Vec) != c.VectorSize {
			return fmt.Errorf("point %s has vector size %d, expected %d", p.ID, len(p.Vec), c.VectorSize)
		}
	}

	for _, p := range points {
		entry := memEntry{ID: p.ID, Vec: append([]float32(nil), p.Vec...), Meta: p.Meta}
		if i, exists := c.index[p.ID]; exists {
			c.Entries[i] = entry
			continue
		}
		c.index[p.ID] = len(c.Entries)
		c.Entries = append(c.Entries, entry)
	}
	return nil
}

// Search returns up to k points ordered by descending cosine similarity.
// Points with equal scores keep their insertion order.
func (s *MemoryStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("failed to search %s: %w", collection, ErrCollectionNotFound)
	}
	if len(query) != c.VectorSize {
		return nil, fmt.Errorf("query vector size %d, expected %d", len(query), c.VectorSize)
	}

	match, err := compileFilters(filters)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(c.Entries))
	for _, e := range c.Entries {
		if !match(e.Meta) {
			continue
		}
		results = append(results, SearchResult{PointID: e.ID, Score: cosine(query, e.Vec), Meta: e.Meta})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes points by their IDs.
func (s *MemoryStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("failed to delete from %s: %w", collection, ErrCollectionNotFound)
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := c.Entries[:0]
	for _, e := range c.Entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	c.Entries = kept
	c.reindex()
	return nil
}

// Count returns the number of points in the collection.
func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("failed to count %s: %w", collection, ErrCollectionNotFound)
	}
	return len(c.Entries), nil
}

// Persist writes the collection to disk. The file is replaced atomically.
func (s *MemoryStore) Persist(ctx context.Context, collection string) error {
	if s.dir == "" {
		return nil
	}

	s.mu.RLock()
	c, ok := s.collections[collection]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("failed to persist %s: %w", collection, ErrCollectionNotFound)
	}
	err := s.writeFile(collection, c)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "collection persisted",
		"collection", collection,
		"points", len(c.Entries),
		"path", s.path(collection),
	)
	return nil
}

// Load restores the collection from disk, replacing any in-memory copy.
// A missing file yields an error wrapping ErrCollectionNotFound.
func (s *MemoryStore) Load(ctx context.Context, collection string) error {
	if s.dir == "" {
		return fmt.Errorf("failed to load %s: %w", collection, ErrCollectionNotFound)
	}

	f, err := os.Open(s.path(collection))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", collection, ErrCollectionNotFound)
		}
		return fmt.Errorf("failed to open collection file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var c memCollection
	if err := gob.NewDecoder(f).Decode(&c); err != nil {
		return fmt.Errorf("failed to decode collection file: %w", err)
	}
	c.reindex()

	s.mu.Lock()
	s.collections[collection] = &c
	s.mu.Unlock()

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "collection loaded", "collection", collection, "points", len(c.Entries))
	return nil
}

func (s *MemoryStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".gob")
}

func (s *MemoryStore) writeFile(collection string, c *memCollection) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := gob.NewEncoder(tmp).Encode(c); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(collection)); err != nil {
		return fmt.Errorf("failed to replace collection file: %w", err)
	}
	return nil
}

func (c *memCollection) reindex() {
	c.index = make(map[string]int, len(c.Entries))
	for i, e := range c.Entries {
		c.index[e.ID] = i
	}
}

// cosine returns 0 when either vector has zero norm.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// compileFilters turns Search filters into a predicate over point metadata.
func compileFilters(filters map[string]any) (func(map[string]any) bool, error) {
	var preds []func(map[string]any) bool

	if v, ok := filters[FilterMinMagnitude]; ok {
		min, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("invalid %s filter: %v", FilterMinMagnitude, v)
		}
		preds = append(preds, func(meta map[string]any) bool {
			mag, ok := toFloat(meta["magnitude"])
			return ok && mag >= min
		})
	}

	if v, ok := filters[FilterRegion]; ok {
		needle := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
		if needle != "" {
			preds = append(preds, func(meta map[string]any) bool {
				region, _ := meta["region"].(string)
				return strings.Contains(strings.ToLower(region), needle)
			})
		}
	}

	return func(meta map[string]any) bool {
		for _, p := range preds {
			if !p(meta) {
				return false
			}
		}
		return true
	}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
