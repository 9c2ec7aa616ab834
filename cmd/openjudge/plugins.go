package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openjudge-dev/openjudge/plugin"
)

// NewPluginsCmd creates the plugins subcommand group.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect installed plugins",
	}
	cmd.AddCommand(newPluginsListCmd())
	return cmd
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plugins found in the plugins directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			// Discovery only; nothing is instantiated, so a quiet logger
			// keeps the table output clean.
			pluginCfg := plugin.Config{PluginsDir: cfg.Plugin.Dir, EnableWasi: cfg.Plugin.EnableWasi}
			host := plugin.NewHost(pluginCfg, nil, plugin.ServerResolver{}, slog.New(slog.DiscardHandler))

			infos, err := host.DiscoverPlugins()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tSTATUS")
			for _, info := range infos {
				status := string(info.Status)
				if info.Error != "" {
					status = fmt.Sprintf("%s (%s)", status, info.Error)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.ID, info.Name, info.Version, status)
			}
			return w.Flush()
		},
	}
}
