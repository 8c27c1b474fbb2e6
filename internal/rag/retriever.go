package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"quakeqa/internal/config"
	"quakeqa/internal/contextutil"
	"quakeqa/internal/indexer"
	"quakeqa/internal/llm"
	"quakeqa/internal/vectorstore"
)

// MaxK bounds the number of segments a single query may retrieve.
const MaxK = config.MaxRetrievalK

// tieSlack is how many extra candidates are fetched beyond k, so points tied at
// the cut-off are ordered by corpus position here rather than by the store.
const tieSlack = 8

// ErrEmptyQuery is returned when the query has no text.
var ErrEmptyQuery = errors.New("query is empty")

// Retriever embeds a query and returns the most similar segments from the index.
// It holds no state besides its configuration.
type Retriever struct {
	embedder    llm.Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	k           int
}

// NewRetriever creates a Retriever returning k segments per query by default.
func NewRetriever(embedder llm.Embedder, vectorStore vectorstore.VectorStore, collection string, k int) *Retriever {
	if k <= 0 {
		k = 3
	}
	return &Retriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		k:           k,
	}
}

// K returns the default number of segments per query.
func (r *Retriever) K() int {
	return r.k
}

// Retrieve returns up to k segments ordered by non-increasing cosine similarity.
// Equal scores keep corpus order, so the same query always yields the same result.
// Embedding failures are returned wrapped around *llm.EmbeddingProviderError.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*RetrievalResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	k := opts.K
	if k <= 0 {
		k = r.k
	}
	k = min(k, MaxK)

	vector, err := llm.EmbedText(ctx, r.embedder, query)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	filters := make(map[string]any)
	if opts.MinMagnitude != nil {
		filters[vectorstore.FilterMinMagnitude] = *opts.MinMagnitude
	}
	if region := strings.TrimSpace(opts.Region); region != "" {
		filters[vectorstore.FilterRegion] = region
	}

	hits, err := r.vectorStore.Search(ctx, r.collection, vector, k+tieSlack, filters)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search vector store", "error", err)
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	segments := make([]ScoredSegment, 0, len(hits))
	for _, hit := range hits {
		seg, seq, err := indexer.SegmentFromPayload(hit.PointID, hit.Meta)
		if err != nil {
			logger.WarnContext(ctx, "skipping malformed point", "point_id", hit.PointID, "error", err)
			continue
		}
		segments = append(segments, ScoredSegment{Segment: seg, Score: hit.Score, Seq: seq})
	}

	// Stores other than the in-memory one do not promise a stable tie order.
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].Score != segments[j].Score {
			return segments[i].Score > segments[j].Score
		}
		return segments[i].Seq < segments[j].Seq
	})
	if len(segments) > k {
		segments = segments[:k]
	}

	if len(segments) > 0 {
		topScores := make([]float32, 0, 3)
		for i := 0; i < len(segments) && i < 3; i++ {
			topScores = append(topScores, segments[i].Score)
		}
		logger.DebugContext(ctx, "top search results", "top_3_scores", topScores)
	}
	logger.InfoContext(ctx, "vector search completed", "results_count", len(segments), "k_requested", k)

	return &RetrievalResult{Query: query, Segments: segments}, nil
}
