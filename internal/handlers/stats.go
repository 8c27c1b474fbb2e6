package handlers

import (
	"context"
	"errors"
	"net/http"

	"quakeqa/internal/contextutil"
	"quakeqa/internal/indexer"
	"quakeqa/internal/vectorstore"
)

// StatsProvider reports statistics about the published index.
type StatsProvider interface {
	Stats(ctx context.Context) (*indexer.IndexStats, error)
}

// StatsHandler serves index statistics.
type StatsHandler struct {
	stats StatsProvider
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats StatsProvider) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// ServeHTTP returns the index statistics as JSON.
//
// swagger:route GET /api/v1/stats indexStats
//
// # Index statistics
//
// Records indexed and skipped, segment count, token statistics and index version.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Index statistics
//	'404':
//	  description: No index has been built
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	stats, err := h.stats.Stats(ctx)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			writeError(w, http.StatusNotFound, "No index has been built")
			return
		}
		logger.ErrorContext(ctx, "failed to compute index stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute index stats")
		return
	}
	writeJSON(ctx, w, http.StatusOK, stats)
}
