package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quakeqa/internal/handlers"
	"quakeqa/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	// Orchestrator answers queries and owns the index lifecycle.
	Orchestrator interface {
		handlers.QueryService
		handlers.IndexService
	}
	Stats          handlers.StatsProvider
	Records        handlers.RecordLookup
	Segments       handlers.SegmentLookup
	VectorStore    vectorstore.VectorStore
	CollectionName string
	// BuildContext bounds builds started through the API.
	BuildContext context.Context
	IndexHTML    string // Embedded HTML content
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	buildCtx := deps.BuildContext
	if buildCtx == nil {
		buildCtx = context.Background()
	}

	askHandler := handlers.NewAskHandler(deps.Orchestrator)
	indexHandler := handlers.NewIndexHandler(buildCtx, deps.Orchestrator)
	healthHandler := handlers.NewHealthHandler(deps.Orchestrator, deps.VectorStore, deps.CollectionName)
	statsHandler := handlers.NewStatsHandler(deps.Stats)
	recordHandler := handlers.NewRecordHandler(deps.Records, deps.Segments)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodPost, "/ask", askHandler)
			r.Method(http.MethodPost, "/index", indexHandler)
			r.Method(http.MethodGet, "/stats", statsHandler)
			r.Get("/records/{source}", recordHandler.ServeJSON)
		})
	})

	r.Get("/records/{source}", recordHandler.ServeHTTP)

	// Serve HTML page at root
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(deps.IndexHTML))
	})

	return r
}
