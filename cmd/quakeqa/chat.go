package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"quakeqa/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions in an interactive terminal session",
	Long: `Open an interactive chat in the terminal. The index is built or loaded
first; the input stays locked until it is ready.

Logs are written to the log file only, so they do not disturb the screen.

Controls:
  Enter         - Ask
  Esc / Ctrl+C  - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	program := tea.NewProgram(
		tui.New(a.Context(cmd.Context()), a.orchestrator),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("failed to run chat: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}
