package handlers

import (
	"context"
	"net/http"

	"quakeqa/internal/contextutil"
	"quakeqa/internal/indexer"
	"quakeqa/internal/service"
)

// IndexService owns the index lifecycle.
type IndexService interface {
	Start(ctx context.Context) (*indexer.BuildReport, error)
	Status() service.Status
}

// IndexHandler handles HTTP requests for building the index.
type IndexHandler struct {
	index IndexService
	// runCtx outlives the request so a build continues after the response is sent.
	runCtx context.Context
}

// NewIndexHandler creates a new IndexHandler. Builds it starts run under runCtx.
func NewIndexHandler(runCtx context.Context, index IndexService) *IndexHandler {
	return &IndexHandler{
		index:  index,
		runCtx: runCtx,
	}
}

// IndexResponse represents the response from the index endpoint.
//
// swagger:model IndexResponse
type IndexResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	// Present when the index is already ready
	Report *BuildReportResponse `json:"report,omitempty"`
}

// BuildReportResponse summarizes a build or load.
//
// swagger:model BuildReportResponse
type BuildReportResponse struct {
	Records      int    `json:"records"`
	Skipped      int    `json:"skipped"`
	Segments     int    `json:"segments"`
	Dimension    int    `json:"dimension"`
	IndexVersion string `json:"index_version"`
	Loaded       bool   `json:"loaded"`
	DurationMs   int64  `json:"duration_ms"`
}

func newBuildReportResponse(r *indexer.BuildReport) *BuildReportResponse {
	if r == nil {
		return nil
	}
	return &BuildReportResponse{
		Records:      r.Records,
		Skipped:      r.Skipped,
		Segments:     r.Segments,
		Dimension:    r.Dimension,
		IndexVersion: r.IndexVersion,
		Loaded:       r.Loaded,
		DurationMs:   r.Duration.Milliseconds(),
	}
}

// ServeHTTP starts building or loading the index if it is not ready.
//
// swagger:route POST /api/v1/index buildIndex
//
// # Build the index
//
// Returns 200 with the build report when the index is already ready, otherwise
// starts the build in the background and returns 202.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Index already ready
//	  schema:
//	    "$ref": "#/definitions/IndexResponse"
//	'202':
//	  description: Build started
//	  schema:
//	    "$ref": "#/definitions/IndexResponse"
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := h.index.Status()
	if status.State == service.StateReady {
		writeJSON(ctx, w, http.StatusOK, IndexResponse{
			Message: "Index is ready.",
			Status:  status.State.String(),
			Report:  newBuildReportResponse(status.Report),
		})
		return
	}

	if !status.Building {
		logger.InfoContext(ctx, "index build triggered via API")
		// Start is serialized, so a racing trigger only waits for this build.
		go func() {
			buildCtx := contextutil.WithLogger(h.runCtx, logger)
			if _, err := h.index.Start(buildCtx); err != nil {
				logger.ErrorContext(buildCtx, "index build failed", "error", err)
			}
		}()
	}

	writeJSON(ctx, w, http.StatusAccepted, IndexResponse{
		Message: "Index build started. Check /api/health for progress.",
		Status:  "building",
	})
}
