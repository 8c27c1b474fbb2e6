package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quakeqa/internal/http"
)

//go:embed web/index.html
var indexHTML string

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and web page",
	Long: `Start the HTTP server. The index is prepared in the background, so the
server accepts connections immediately; questions asked before the index is
ready are answered with 503.

Endpoints:
  POST /api/v1/ask               ask a question
  POST /api/v1/index             build or load the index
  GET  /api/v1/stats             index statistics
  GET  /api/v1/records/{source}  a cited record as JSON
  GET  /api/health               readiness
  GET  /records/{source}         a cited record as a page
  GET  /                         web page`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	ctx, stop := signal.NotifyContext(a.Context(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := http.NewRouter(&http.Deps{
		Orchestrator:   a.orchestrator,
		Stats:          a.pipeline,
		Records:        a.records,
		Segments:       a.segments,
		VectorStore:    a.vectorStore,
		CollectionName: a.cfg.IndexCollection,
		BuildContext:   ctx,
		IndexHTML:      indexHTML,
	})

	// Start indexing in background after router is ready
	go func() {
		a.logger.Info("Preparing index in background", "dataset", a.cfg.DatasetPath)
		report, err := a.orchestrator.Start(ctx)
		if err != nil {
			a.logger.Error("Index preparation failed", "error", err)
			return
		}
		a.logger.Info("Index ready",
			"records", report.Records,
			"segments", report.Segments,
			"loaded", report.Loaded,
			"duration", report.Duration,
		)
	}()

	srv := &nethttp.Server{
		Addr:              ":" + a.cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting API server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}
