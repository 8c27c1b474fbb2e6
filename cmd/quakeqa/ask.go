package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quakeqa/internal/handlers"
	"quakeqa/internal/quake"
	"quakeqa/internal/rag"
)

var (
	askJSON         bool
	askK            int
	askMinMagnitude float64
	askRegion       string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Long: `Answer a single question from the indexed catalog. The index is built or
loaded first.

Examples:
  quakeqa ask "What was the largest earthquake?"
  quakeqa ask --min-magnitude 6 "Which strong earthquakes hit Malatya?"
  quakeqa ask --json -k 5 "How deep was the Elazig earthquake?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer and its sources as JSON")
	askCmd.Flags().IntVarP(&askK, "top-k", "k", 0, "number of segments to retrieve (0 uses the configured default)")
	askCmd.Flags().Float64Var(&askMinMagnitude, "min-magnitude", 0, "only use events of at least this magnitude")
	askCmd.Flags().StringVar(&askRegion, "region", "", "only use events whose region contains this text")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	ctx := a.Context(cmd.Context())
	if _, err := a.orchestrator.Start(ctx); err != nil {
		return err
	}

	req := rag.AskRequest{
		Question: strings.Join(args, " "),
		K:        askK,
		Region:   askRegion,
	}
	if cmd.Flags().Changed("min-magnitude") {
		m := askMinMagnitude
		req.MinMagnitude = &m
	}

	record, err := a.orchestrator.AnswerQuery(ctx, req)
	if err != nil {
		return err
	}

	if askJSON {
		out, err := json.MarshalIndent(handlers.NewAskResponse(record), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode answer: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Println(record.Answer)
	if record.NotFound || len(record.Evidence) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for _, e := range record.Evidence {
		cmd.Printf("  [%d] %s  M%s  %s  %s  (score %.3f)\n",
			e.CitationID,
			e.Source,
			quake.FormatNumber(e.Magnitude),
			e.Region,
			e.Time.UTC().Format(quake.DisplayTimeLayout),
			e.Score,
		)
	}
	return nil
}
