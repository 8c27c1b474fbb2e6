package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"quakeqa/internal/contextutil"
	"quakeqa/internal/llm"
	"quakeqa/internal/rag"
	"quakeqa/internal/service"
	"quakeqa/internal/vectorstore"
)

// QueryService answers questions from the index.
// This interface is defined from the handler's perspective (consumer-first).
type QueryService interface {
	AnswerQuery(ctx context.Context, req rag.AskRequest) (*rag.AnswerRecord, error)
}

// AskHandler handles HTTP requests for RAG queries.
type AskHandler struct {
	queries QueryService
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(queries QueryService) *AskHandler {
	return &AskHandler{queries: queries}
}

// AskRequest represents the HTTP request payload for RAG queries.
// This mirrors the rag.AskRequest but is defined here for HTTP layer separation.
//
// swagger:model AskRequest
type AskRequest struct {
	// The question about the earthquake dataset
	Question string `json:"question"`
	// Number of segments to retrieve (0 means the configured default, at most 20)
	K int `json:"k,omitempty"`
	// Only consider events with at least this magnitude
	MinMagnitude *float64 `json:"min_magnitude,omitempty"`
	// Only consider events whose region contains this text
	Region string `json:"region,omitempty"`
}

// AskResponse represents the HTTP response payload for RAG queries.
//
// swagger:model AskResponse
type AskResponse struct {
	// The question as answered
	Question string `json:"question"`
	// The generated answer, or the not-found sentinel
	Answer string `json:"answer"`
	// NotFound is true when the dataset does not contain the answer
	NotFound bool `json:"not_found"`
	// The segments given to the model, in citation order
	Sources []SourceResponse `json:"sources"`
}

// SourceResponse is one piece of evidence behind an answer.
//
// swagger:model SourceResponse
type SourceResponse struct {
	CitationID int       `json:"citation_id"`
	Text       string    `json:"text"`
	Magnitude  float64   `json:"magnitude"`
	Source     string    `json:"source"`
	Region     string    `json:"region"`
	Time       time.Time `json:"time"`
	Score      float32   `json:"score"`
	// Link to the rendered record page
	URL string `json:"url"`
}

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles HTTP requests for RAG queries.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question about the earthquake dataset
//
// Returns an answer grounded in the indexed records together with the evidence used.
// Questions the dataset cannot answer get the not-found sentinel and not_found=true.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Answer with sources
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'400':
//	  description: Invalid request
//	'502':
//	  description: Embedding or generation provider failed
//	'503':
//	  description: Index is not ready yet
//	'504':
//	  description: Generation timed out
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := h.queries.AnswerQuery(ctx, rag.AskRequest{
		Question:     req.Question,
		K:            req.K,
		MinMagnitude: req.MinMagnitude,
		Region:       req.Region,
	})
	if err != nil {
		handleQueryError(ctx, w, err)
		return
	}

	resp := NewAskResponse(record)
	writeJSON(ctx, w, http.StatusOK, resp)
}

// NewAskResponse converts an answer into its wire form.
func NewAskResponse(record *rag.AnswerRecord) AskResponse {
	resp := AskResponse{
		Question: record.Query,
		Answer:   record.Answer,
		NotFound: record.NotFound,
		Sources:  make([]SourceResponse, len(record.Evidence)),
	}
	for i, e := range record.Evidence {
		resp.Sources[i] = SourceResponse{
			CitationID: e.CitationID,
			Text:       e.Text,
			Magnitude:  e.Magnitude,
			Source:     e.Source,
			Region:     e.Region,
			Time:       e.Time,
			Score:      e.Score,
			URL:        RecordURL(e.Source),
		}
	}
	return resp
}

// RecordURL returns the path of the HTML page for a record source identifier.
func RecordURL(source string) string {
	return "/records/" + url.PathEscape(source)
}

// handleQueryError maps query errors to HTTP status codes.
func handleQueryError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := contextutil.LoggerFromContext(ctx)

	var (
		validationErr *service.ValidationError
		timeoutErr    *llm.GenerationTimeoutError
		genErr        *llm.GenerationProviderError
		embedErr      *llm.EmbeddingProviderError
	)
	switch {
	case errors.Is(err, service.ErrNotReady):
		logger.WarnContext(ctx, "query rejected, index not ready")
		writeError(w, http.StatusServiceUnavailable, "The index is still being built. Try again shortly.")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &timeoutErr):
		logger.ErrorContext(ctx, "generation timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "Sorry, the answer took too long to generate.")
	case errors.As(err, &embedErr), errors.As(err, &genErr):
		logger.ErrorContext(ctx, "provider error", "error", err)
		writeError(w, http.StatusBadGateway, "Sorry, the language model service is unavailable.")
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		logger.ErrorContext(ctx, "index collection missing", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
	default:
		logger.ErrorContext(ctx, "query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process query")
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
