package main

import (
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the persisted index and record catalog",
	Long: `Delete the vector collection, its build record and the record catalog.
The next serve, chat, index or ask rebuilds everything from the dataset.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm deletion")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	if !resetYes {
		cmd.Printf("This deletes collection %q and the record catalog in %s.\n", a.cfg.IndexCollection, a.cfg.DBPath)
		cmd.Println("Run again with --yes to confirm.")
		return nil
	}

	if err := a.pipeline.Reset(a.Context(cmd.Context())); err != nil {
		return err
	}
	cmd.Printf("Deleted index %q\n", a.cfg.IndexCollection)
	return nil
}
