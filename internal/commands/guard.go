package commands

import (
	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/config"
	"github.com/evetools/esigate/internal/output"
	"github.com/evetools/esigate/internal/taskretry"
)

// NewGuardCmd creates the guard command.
func NewGuardCmd() *cobra.Command {
	var ignoreDowntime bool
	var reason string

	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Decide whether a scheduled task should run now or retry later",
		Long: `Probe ESI on behalf of a scheduled task.

Exits 0 when the task may proceed. When ESI is unhealthy it exits 75
(EX_TEMPFAIL) and reports the countdown after which the task should be
retried: 11 to 19 minutes while ESI is offline, or the error-limit reset
plus jitter when the error budget is exhausted.`,
		Example: `  esigate guard --reason "market sync" && ./sync-markets
  esigate guard --json | jq .retry_in`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			if ignoreDowntime {
				config.ApplyOverrides(app.Config, config.FlagOverrides{IgnoreDowntime: true})
				app.SetConfig(app.Config)
			}

			adapter := taskretry.NewAdapter(app.Fetcher(), app.Evaluator,
				taskretry.WithLogger(app.Logger),
				taskretry.WithRand(app.Rand()),
				taskretry.WithObserver(app.Hooks.OnVerdict),
			)

			if err := adapter.RetryIfUnhealthy(cmd.Context(), taskretry.Directive{Reason: reason}); err != nil {
				return output.FromVerdict(err)
			}

			return app.OK(map[string]any{"proceed": true},
				output.WithSummary("ESI is healthy, proceed"),
			)
		},
	}

	cmd.Flags().BoolVar(&ignoreDowntime, "ignore-downtime", false, "Probe even during the daily downtime window")
	cmd.Flags().StringVar(&reason, "reason", "", "Task description included in the retry message")

	return cmd
}
