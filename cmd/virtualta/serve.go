package main

import (
	"github.com/spf13/cobra"

	"virtualta/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer func() { _ = a.logger.Sync() }()

		engine, err := a.engine(cmd.Context())
		if err != nil {
			return err
		}
		addr := a.cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		return server.New(engine, a.registry, a.logger.Named("server")).ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
