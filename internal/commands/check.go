package commands

import (
	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/config"
	"github.com/evetools/esigate/internal/output"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	var ignoreDowntime bool
	var record bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe ESI and report whether it is healthy",
		Long: `Probe the ESI status endpoint once and assess the result.

Exits 0 when ESI is healthy, 2 when it is offline and 3 when the error
limit threshold has been reached. During the daily downtime window ESI is
reported offline without a request unless --ignore-downtime is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			if ignoreDowntime {
				config.ApplyOverrides(app.Config, config.FlagOverrides{IgnoreDowntime: true})
				app.SetConfig(app.Config)
			}

			p := probe(cmd.Context(), app)
			report := p.report(app.Config.StatusURL)

			if record {
				if _, err := app.Ledger.Record(p.Status, p.Verdict, p.InDowntime); err != nil {
					app.Logger.Warn("Failed to record probe", "error", err)
				}
			}

			if err := p.err(); err != nil {
				return err.WithData(report)
			}
			return app.OK(report,
				output.WithSummary(p.summary()),
			)
		},
	}

	cmd.Flags().BoolVar(&ignoreDowntime, "ignore-downtime", false, "Probe even during the daily downtime window")
	cmd.Flags().BoolVar(&record, "record", false, "Record the probe in the ledger")

	return cmd
}
