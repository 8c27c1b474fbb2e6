package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"quakeqa/internal/config"
	"quakeqa/internal/contextutil"
	"quakeqa/internal/indexer"
	"quakeqa/internal/llm"
	"quakeqa/internal/rag"
	"quakeqa/internal/service"
	"quakeqa/internal/storage"
	"quakeqa/internal/vectorstore"
)

// app holds every long-lived component of one process.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *sql.DB
	vectorStore  vectorstore.VectorStore
	records      *storage.RecordRepo
	segments     *storage.SegmentRepo
	pipeline     *indexer.Pipeline
	orchestrator *service.Orchestrator
	closers      []func() error
}

// newApp loads the configuration and wires the pipeline, the engine and the orchestrator.
// Logs go to the log file, and also to console when it is non-nil.
// Only serve logs to the console; the other commands keep stdout for their own output.
func newApp(console io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	logger, closeLog, err := setupLogging(cfg, console)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.closers = append(a.closers, closeLog)

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.logger.Debug("Database initialized", "path", cfg.DBPath)

	embedder, embeddingModel, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	generator := newGenerator(cfg, embedder)

	switch cfg.VectorStore {
	case config.StoreQdrant:
		qdrant, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			return fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.vectorStore = qdrant
		a.closers = append(a.closers, qdrant.Close)
	default:
		a.vectorStore = vectorstore.NewMemoryStore(cfg.IndexPath)
	}
	a.logger.Debug("Vector store selected", "store", cfg.VectorStore, "collection", cfg.IndexCollection)

	chunker, err := indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return err
	}

	a.records = storage.NewRecordRepo(db)
	a.segments = storage.NewSegmentRepo(db)
	a.pipeline = indexer.NewPipeline(
		chunker,
		embedder,
		a.vectorStore,
		a.records,
		a.segments,
		storage.NewBuildRepo(db),
		indexer.Options{
			DatasetPath:    cfg.DatasetPath,
			Delimiter:      cfg.DatasetDelimiter,
			Collection:     cfg.IndexCollection,
			EmbeddingModel: embeddingModel,
			BatchSize:      cfg.EmbedBatchSize,
		},
	)

	retriever := rag.NewRetriever(embedder, a.vectorStore, cfg.IndexCollection, cfg.RetrievalK)
	answerer := rag.NewAnswerer(generator, rag.AnswererOptions{
		Sentinel:    cfg.NotFoundSentinel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.GenerationTimeout,
		MinScore:    cfg.MinSimilarity,
	})
	a.orchestrator = service.NewOrchestrator(a.pipeline, rag.NewEngine(retriever, answerer))

	a.logger.Debug("LLM configuration",
		"provider", cfg.LLMProvider,
		"base_url", cfg.LLMBaseURL,
		"model", cfg.LLMModelName,
		"embedding_provider", cfg.EmbeddingProvider,
		"embedding_model", embeddingModel,
	)
	return nil
}

// newEmbedder returns the configured embedder and the model name recorded in the index version.
func newEmbedder(cfg *config.Config) (llm.Embedder, string, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderHash:
		e, err := llm.NewHashEmbedder(cfg.EmbeddingDimension)
		if err != nil {
			return nil, "", &config.ConfigError{Field: "EMBEDDING_DIMENSION", Message: err.Error()}
		}
		return e, fmt.Sprintf("%s-%d", llm.ModelHash, cfg.EmbeddingDimension), nil
	case config.ProviderOpenAI:
		c := llm.NewOpenAIClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.LLMModelName, cfg.EmbeddingModelName, cfg.EmbeddingDimension)
		return c, cfg.EmbeddingModelName, nil
	default:
		c := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingDimension)
		return c, cfg.EmbeddingModelName, nil
	}
}

// newGenerator reuses the embedding client when both sides talk to the same OpenAI endpoint.
func newGenerator(cfg *config.Config, embedder llm.Embedder) llm.Generator {
	if cfg.LLMProvider != config.ProviderOpenAI {
		return llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	}
	if c, ok := embedder.(*llm.OpenAIClient); ok && cfg.EmbeddingBaseURL == cfg.LLMBaseURL && cfg.EmbeddingAPIKey == cfg.LLMAPIKey {
		return c
	}
	return llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.EmbeddingModelName, cfg.EmbeddingDimension)
}

// Context returns ctx carrying the application logger.
func (a *app) Context(ctx context.Context) context.Context {
	return contextutil.WithLogger(ctx, a.logger)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// setupLogging builds the process logger and installs it as the slog default.
func setupLogging(cfg *config.Config, console io.Writer) (*slog.Logger, func() error, error) {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	closeFn := func() error { return nil }
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closeFn = f.Close
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	return logger, closeFn, nil
}
