package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"virtualta/internal/tui"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// The TUI owns the terminal, so logging is off.
		a, err := newApp(true)
		if err != nil {
			return err
		}
		engine, err := a.engine(cmd.Context())
		if err != nil {
			return err
		}
		_, err = tea.NewProgram(tui.New(cmd.Context(), engine), tea.WithContext(cmd.Context())).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
