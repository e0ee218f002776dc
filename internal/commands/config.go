package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/config"
	"github.com/evetools/esigate/internal/output"
)

// configEntry is one effective setting.
type configEntry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// NewConfigCmd creates the config command for inspecting configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect esigate configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > --config file > global > system > defaults

Config locations:
  - System: /etc/esigate/config.yaml
  - Global: ~/.config/esigate/config.yaml

Environment variables use the ESIGATE_ prefix, e.g. ESIGATE_STATUS_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())

	keys := config.Keys()
	entries := make([]configEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, configEntry{
			Key:    key,
			Value:  app.Config.Value(key),
			Source: app.Config.Source(key),
		})
	}

	opts := []output.ResponseOption{output.WithSummary("Effective configuration")}
	if len(app.Config.Files) > 0 {
		opts = append(opts, output.WithMeta("files", app.Config.Files))
	}
	return app.OK(entries, opts...)
}

// configPath is a config file location and whether it exists.
type configPath struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "List config file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			var paths []configPath
			for _, p := range config.FilePaths(app.Flags.ConfigFile) {
				_, err := os.Stat(p)
				paths = append(paths, configPath{Path: p, Exists: err == nil})
			}
			return app.OK(paths, output.WithSummary("Config files, in load order"))
		},
	}
}
