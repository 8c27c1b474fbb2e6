package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"quakeqa/internal/storage"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "recursive-v1"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// IndexStats describes the published index.
type IndexStats struct {
	// Collection is the vector store collection holding the index.
	Collection string `json:"collection"`
	// Records is the number of dataset records that were indexed.
	Records int `json:"records"`
	// Skipped is the number of dataset rows rejected during loading or normalization.
	Skipped int `json:"skipped"`
	// Segments is the number of segments stored in the vector index.
	Segments int `json:"segments"`
	// Dimension is the embedding vector size.
	Dimension int `json:"dimension"`
	// ChunkTokenStats contains statistics about token counts per segment.
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
	// EmbeddingModel names the embedder that produced the vectors.
	EmbeddingModel string `json:"embedding_model,omitempty"`
	// IndexVersion is a hash identifying the index build (chunker + embedding model + params + dataset).
	IndexVersion string `json:"index_version,omitempty"`
	// BuiltAt is when the index was built.
	BuiltAt time.Time `json:"built_at,omitempty"`
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	// Min is the minimum token count across all chunks.
	Min int `json:"min"`
	// Max is the maximum token count across all chunks.
	Max int `json:"max"`
	// Mean is the mean token count across all chunks.
	Mean float64 `json:"mean"`
	// P95 is the 95th percentile token count.
	P95 int `json:"p95"`
}

// Stats computes statistics about the published index from the vector store and the catalog.
func (p *Pipeline) Stats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{
		Collection:     p.opts.Collection,
		ChunkerVersion: ChunkerVersion,
		EmbeddingModel: p.opts.EmbeddingModel,
	}

	count, err := p.vectorStore.Count(ctx, p.opts.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to count segments: %w", err)
	}
	stats.Segments = count

	if p.builds != nil {
		build, err := p.builds.Get(ctx, p.opts.Collection)
		switch {
		case err == nil:
			stats.Records = build.Records
			stats.Skipped = build.Skipped
			stats.Dimension = build.Dimension
			stats.EmbeddingModel = build.EmbeddingModel
			stats.IndexVersion = build.IndexVersion
			stats.BuiltAt = build.BuiltAt
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to read build record: %w", err)
		}
	}

	if p.segments != nil {
		texts, err := p.segments.Texts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get segments: %w", err)
		}
		stats.ChunkTokenStats = computeTokenStats(estimateTokens(texts))
	}

	return stats, nil
}

// estimateTokens approximates token counts from rune counts (~4 chars per token).
func estimateTokens(texts []string) []int {
	tokenCounts := make([]int, 0, len(texts))
	for _, text := range texts {
		runeCount := utf8.RuneCountInString(text)
		tokenCount := int(math.Round(float64(runeCount) / TokensPerRune))
		if tokenCount < 1 {
			tokenCount = 1 // Minimum 1 token
		}
		tokenCounts = append(tokenCounts, tokenCount)
	}
	return tokenCounts
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	// Sort for percentile calculation
	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	min := sorted[0]
	max := sorted[len(sorted)-1]

	// Compute mean
	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	// Compute p95
	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}
	p95 := sorted[p95Index]

	return ChunkTokenStats{
		Min:  min,
		Max:  max,
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  p95,
	}
}

