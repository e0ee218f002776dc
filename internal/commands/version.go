package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/output"
	"github.com/evetools/esigate/internal/version"
)

// NewVersionCmd creates the version command. It runs without loading
// configuration, so it works even when the config is broken.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			if !jsonFlag {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Full())
				return err
			}

			w := output.New(output.Options{Format: output.FormatJSON, Writer: cmd.OutOrStdout()})
			return w.OK(map[string]any{
				"version":    version.Version,
				"commit":     version.Commit,
				"date":       version.Date,
				"user_agent": version.UserAgent(),
			})
		},
	}
}
