package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openjudge-dev/openjudge/server"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the contest server with its plugin runtime",
		Long: `Start the HTTP server process. Plugins with a server section are
discovered and loaded at startup; their routes, events, and web assets
are served until the process receives SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("starting server", "address", cfg.Server.Address, "plugins_dir", cfg.Plugin.Dir)
			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
