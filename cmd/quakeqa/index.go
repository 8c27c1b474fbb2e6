package main

import (
	"time"

	"github.com/spf13/cobra"

	"quakeqa/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the index, or load it if it is current",
	Long: `Prepare the vector index for the configured dataset.

A persisted index whose version matches the dataset, the chunking settings
and the embedding model is loaded as-is. Anything else triggers a full build.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var indexShowStats bool

func init() {
	indexCmd.Flags().BoolVar(&indexShowStats, "stats", false, "print segment statistics after indexing")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	ctx := a.Context(cmd.Context())
	report, err := a.orchestrator.Start(ctx)
	if err != nil {
		return err
	}
	printReport(cmd, report)

	if !indexShowStats {
		return nil
	}
	stats, err := a.pipeline.Stats(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Segment tokens: min %d, max %d, mean %.1f, p95 %d\n",
		stats.ChunkTokenStats.Min, stats.ChunkTokenStats.Max, stats.ChunkTokenStats.Mean, stats.ChunkTokenStats.P95)
	cmd.Printf("Chunker:        %s\n", stats.ChunkerVersion)
	if stats.EmbeddingModel != "" {
		cmd.Printf("Embeddings:     %s\n", stats.EmbeddingModel)
	}
	return nil
}

func printReport(cmd *cobra.Command, report *indexer.BuildReport) {
	action := "Built"
	if report.Loaded {
		action = "Loaded"
	}
	cmd.Printf("%s index %s\n", action, shortVersion(report.IndexVersion))
	cmd.Printf("Records:        %d\n", report.Records)
	if report.Skipped > 0 {
		cmd.Printf("Skipped rows:   %d\n", report.Skipped)
	}
	cmd.Printf("Segments:       %d\n", report.Segments)
	cmd.Printf("Dimension:      %d\n", report.Dimension)
	cmd.Printf("Took:           %s\n", report.Duration.Round(time.Millisecond))
}

func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}
