package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"quakeqa/internal/contextutil"
	"quakeqa/internal/llm"
	"quakeqa/internal/quake"
	"quakeqa/internal/storage"
	"quakeqa/internal/vectorstore"
)

// Options configures a Pipeline.
type Options struct {
	DatasetPath string
	// Delimiter of the dataset file; zero auto-detects.
	Delimiter rune
	// Collection is the vector store collection holding the index.
	Collection string
	// EmbeddingModel names the embedder for the index version.
	EmbeddingModel string
	// BatchSize is the number of segments sent per embedding request.
	BatchSize int
}

// BuildReport summarizes a built or loaded index.
type BuildReport struct {
	Records      int
	Skipped      int
	Segments     int
	Dimension    int
	IndexVersion string
	Loaded       bool // true when restored from a previous build
	Duration     time.Duration
}

// Pipeline turns the dataset into a searchable index:
// load, normalize, chunk, embed, store.
type Pipeline struct {
	chunker     *Chunker
	embedder    llm.Embedder
	vectorStore vectorstore.VectorStore
	records     storage.RecordStore
	segments    *storage.SegmentRepo
	builds      storage.BuildStore
	opts        Options
}

// NewPipeline creates a new indexing pipeline.
// records, segments and builds may be nil; the index then works without a catalog.
func NewPipeline(
	chunker *Chunker,
	embedder llm.Embedder,
	vectorStore vectorstore.VectorStore,
	records storage.RecordStore,
	segments *storage.SegmentRepo,
	builds storage.BuildStore,
	opts Options,
) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Pipeline{
		chunker:     chunker,
		embedder:    embedder,
		vectorStore: vectorStore,
		records:     records,
		segments:    segments,
		builds:      builds,
		opts:        opts,
	}
}

// Collection returns the vector store collection the pipeline writes.
func (p *Pipeline) Collection() string {
	return p.opts.Collection
}

// IndexVersion identifies what a build from the current inputs would contain:
// chunker version and parameters, embedding model and dataset content.
func (p *Pipeline) IndexVersion() (string, error) {
	f, err := os.Open(p.opts.DatasetPath)
	if err != nil {
		return "", &quake.DataLoadError{Path: p.opts.DatasetPath, Reason: "cannot read dataset file", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &quake.DataLoadError{Path: p.opts.DatasetPath, Reason: "cannot read dataset file", Err: err}
	}
	datasetHash := hex.EncodeToString(h.Sum(nil))

	input := fmt.Sprintf("%s|%s|maxChunkSize=%d|overlap=%d|dataset=%s",
		ChunkerVersion, p.opts.EmbeddingModel, p.chunker.MaxSize(), p.chunker.Overlap(), datasetHash)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16], nil
}

// Exists reports whether a published index matching the current inputs is available.
// An index built from another dataset or with other parameters counts as absent.
func (p *Pipeline) Exists(ctx context.Context) (bool, error) {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := p.vectorStore.CollectionExists(ctx, p.opts.Collection)
	if err != nil {
		return false, fmt.Errorf("failed to check index: %w", err)
	}
	if !exists || p.builds == nil {
		return exists, nil
	}

	build, err := p.builds.Get(ctx, p.opts.Collection)
	if errors.Is(err, storage.ErrNotFound) {
		logger.InfoContext(ctx, "index has no build record, treating as stale", "collection", p.opts.Collection)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	version, err := p.IndexVersion()
	if err != nil {
		return false, err
	}
	if build.IndexVersion != version {
		logger.InfoContext(ctx, "index is stale",
			"collection", p.opts.Collection,
			"built_version", build.IndexVersion,
			"current_version", version,
		)
		return false, nil
	}
	return true, nil
}

// Load restores a previously built index without re-embedding.
func (p *Pipeline) Load(ctx context.Context) (*BuildReport, error) {
	start := time.Now()

	if ps, ok := p.vectorStore.(vectorstore.Persistent); ok {
		if err := ps.Load(ctx, p.opts.Collection); err != nil {
			return nil, fmt.Errorf("failed to load index: %w", err)
		}
	}

	count, err := p.vectorStore.Count(ctx, p.opts.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to count index points: %w", err)
	}

	report := &BuildReport{Segments: count, Loaded: true}
	if p.builds != nil {
		if build, err := p.builds.Get(ctx, p.opts.Collection); err == nil {
			report.Records = build.Records
			report.Skipped = build.Skipped
			report.Dimension = build.Dimension
			report.IndexVersion = build.IndexVersion
		}
	}
	report.Duration = time.Since(start)

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "index loaded",
		"collection", p.opts.Collection,
		"segments", report.Segments,
		"index_version", report.IndexVersion,
	)
	return report, nil
}

// Build runs the full pipeline and publishes a fresh index.
// Any previous index in the collection is replaced. On failure nothing is published:
// the collection is dropped so a later call starts from scratch.
func (p *Pipeline) Build(ctx context.Context) (*BuildReport, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	version, err := p.IndexVersion()
	if err != nil {
		return nil, err
	}

	loaded, err := quake.LoadCSV(ctx, p.opts.DatasetPath, p.opts.Delimiter)
	if err != nil {
		return nil, err
	}

	skipped := len(loaded.Skipped)
	units := make([]quake.TextUnit, 0, len(loaded.Records))
	kept := make([]quake.Record, 0, len(loaded.Records))
	for _, r := range loaded.Records {
		unit, err := quake.Normalize(r)
		if err != nil {
			logger.WarnContext(ctx, "skipping record", "source", r.Source, "error", err)
			skipped++
			continue
		}
		units = append(units, unit)
		kept = append(kept, r)
	}
	if len(units) == 0 {
		return nil, &quake.DataLoadError{Path: p.opts.DatasetPath, Reason: "no valid records"}
	}

	segments := p.chunker.Split(units)
	logger.InfoContext(ctx, "dataset chunked", "records", len(units), "segments", len(segments))

	vectors, err := p.embedSegments(ctx, segments)
	if err != nil {
		return nil, err
	}
	dim := len(vectors[0])

	if err := p.publish(ctx, units, kept, segments, vectors, dim); err != nil {
		p.discard(ctx)
		return nil, err
	}

	report := &BuildReport{
		Records:      len(units),
		Skipped:      skipped,
		Segments:     len(segments),
		Dimension:    dim,
		IndexVersion: version,
		Duration:     time.Since(start),
	}

	if p.builds != nil {
		if err := p.builds.Save(ctx, &storage.BuildRecord{
			Collection:     p.opts.Collection,
			IndexVersion:   version,
			DatasetPath:    p.opts.DatasetPath,
			Records:        report.Records,
			Skipped:        report.Skipped,
			Segments:       report.Segments,
			EmbeddingModel: p.opts.EmbeddingModel,
			Dimension:      dim,
		}); err != nil {
			p.discard(ctx)
			return nil, err
		}
	}

	logger.InfoContext(ctx, "index built",
		"collection", p.opts.Collection,
		"records", report.Records,
		"skipped", report.Skipped,
		"segments", report.Segments,
		"dimension", dim,
		"duration", report.Duration,
	)
	return report, nil
}

// embedSegments embeds all segment texts in batches, preserving order.
// Embedder failures come back wrapped so errors.As finds *llm.EmbeddingProviderError.
func (p *Pipeline) embedSegments(ctx context.Context, segments []quake.Segment) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	vectors := make([][]float32, 0, len(segments))
	for start := 0; start < len(segments); start += p.opts.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(start+p.opts.BatchSize, len(segments))
		texts := make([]string, 0, end-start)
		for _, seg := range segments[start:end] {
			texts = append(texts, seg.Text)
		}

		batch, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, &llm.EmbeddingProviderError{
				Provider: p.opts.EmbeddingModel,
				Err:      fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(batch)),
			}
		}
		vectors = append(vectors, batch...)
		logger.DebugContext(ctx, "embedded batch", "done", len(vectors), "total", len(segments))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, &llm.EmbeddingProviderError{
				Provider: p.opts.EmbeddingModel,
				Err:      fmt.Errorf("segment %d has vector size %d, expected %d", i, len(v), dim),
			}
		}
	}
	return vectors, nil
}

// publish replaces the collection and the catalog with the new index.
func (p *Pipeline) publish(
	ctx context.Context,
	units []quake.TextUnit,
	records []quake.Record,
	segments []quake.Segment,
	vectors [][]float32,
	dim int,
) error {
	if err := p.vectorStore.DropCollection(ctx, p.opts.Collection); err != nil {
		return fmt.Errorf("failed to drop previous index: %w", err)
	}
	if err := p.vectorStore.EnsureCollection(ctx, p.opts.Collection, dim); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for start := 0; start < len(segments); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(segments))
		points := make([]vectorstore.Point, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, vectorstore.Point{
				ID:   segments[i].ID,
				Vec:  vectors[i],
				Meta: SegmentPayload(segments[i], i),
			})
		}
		if err := p.vectorStore.Upsert(ctx, p.opts.Collection, points); err != nil {
			return fmt.Errorf("failed to upsert vectors: %w", err)
		}
	}

	if ps, ok := p.vectorStore.(vectorstore.Persistent); ok {
		if err := ps.Persist(ctx, p.opts.Collection); err != nil {
			return fmt.Errorf("failed to persist index: %w", err)
		}
	}

	if p.records == nil {
		return nil
	}

	recordRows := make([]*storage.QuakeRecord, len(records))
	for i, r := range records {
		recordRows[i] = &storage.QuakeRecord{
			Source:     r.Source,
			Seq:        i,
			OccurredAt: r.Time,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Magnitude:  r.Magnitude,
			DepthKm:    r.DepthKm,
			Region:     r.Region,
			EventType:  r.EventType,
			Text:       units[i].Text,
		}
	}
	segmentRows := make([]*storage.SegmentRecord, len(segments))
	for i, seg := range segments {
		segmentRows[i] = &storage.SegmentRecord{
			ID:         seg.ID,
			Source:     seg.Metadata.Source,
			ChunkIndex: seg.Index,
			Seq:        i,
			Text:       seg.Text,
		}
	}
	if err := p.records.ReplaceAll(ctx, recordRows, segmentRows); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

// Reset deletes the persisted index and empties the catalog.
// The next Exists call reports false, so the index is rebuilt on next start.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.vectorStore.DropCollection(ctx, p.opts.Collection); err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	if p.builds != nil {
		if err := p.builds.Delete(ctx, p.opts.Collection); err != nil {
			return fmt.Errorf("failed to delete build record: %w", err)
		}
	}
	if p.records != nil {
		if err := p.records.ReplaceAll(ctx, nil, nil); err != nil {
			return fmt.Errorf("failed to clear catalog: %w", err)
		}
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "index reset", "collection", p.opts.Collection)
	return nil
}

// discard removes a partially written index.
func (p *Pipeline) discard(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)
	// The build context may already be canceled; cleanup must still run.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := p.vectorStore.DropCollection(cleanupCtx, p.opts.Collection); err != nil {
		logger.WarnContext(ctx, "failed to drop partial index", "collection", p.opts.Collection, "error", err)
	}
	if p.builds != nil {
		if err := p.builds.Delete(cleanupCtx, p.opts.Collection); err != nil {
			logger.WarnContext(ctx, "failed to clear build record", "collection", p.opts.Collection, "error", err)
		}
	}
}
