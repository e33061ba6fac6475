package main

import (
	"github.com/spf13/cobra"

	"virtualta/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ask tool over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// stdout carries the protocol; zap writes to stderr.
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer func() { _ = a.logger.Sync() }()

		engine, err := a.engine(cmd.Context())
		if err != nil {
			return err
		}
		return mcpserver.ServeStdio(engine)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
