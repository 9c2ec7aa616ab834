package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openjudge-dev/openjudge/config"
	"github.com/openjudge-dev/openjudge/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the openjudge CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openjudge",
		Short: "openjudge - a capability-scoped WebAssembly plugin host",
		Long: `openjudge hosts sandboxed WebAssembly plugins for a contest judging
platform. Plugins declare the host capabilities they need; the host
exposes only what each plugin asked for.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewWorkCmd())
	cmd.AddCommand(NewPluginsCmd())

	return cmd
}

// loadConfig reads the configuration named by --config, falling back to
// built-in defaults when the flag is unset.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	log := logging.Setup("openjudge", cfg.Logging.Format, cfg.Logging.Level, nil)
	return cfg, log, nil
}
