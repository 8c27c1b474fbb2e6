package main

import (
	"os"

	"github.com/spf13/cobra"
)

// configPath is bound to --config and exported to the loader through QUAKEQA_CONFIG.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "quakeqa",
	Short: "Ask questions about an earthquake catalog",
	Long: `quakeqa indexes an earthquake catalog (CSV) into a vector index and answers
questions about it with a language model that may only use retrieved records.

Answers cite the records they rely on. When nothing relevant is retrieved the
model replies with a fixed "not found" sentence instead of guessing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if configPath != "" {
			return os.Setenv("QUAKEQA_CONFIG", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
