package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openjudge-dev/openjudge/worker"
)

// NewWorkCmd creates the work subcommand.
func NewWorkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Start a queue worker with its plugin runtime",
		Long: `Start the worker process. Plugins with a worker section are
discovered and loaded at startup; events consumed from the configured
AMQP queue are dispatched to them until the process receives SIGINT or
SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			w, err := worker.New(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("starting worker", "queue", cfg.Worker.Queue, "plugins_dir", cfg.Plugin.Dir)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
