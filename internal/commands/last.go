package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/output"
)

// LastReport is the output shape for the recorded ledger.
type LastReport struct {
	Health             string     `json:"health"`
	IsOnline           bool       `json:"is_online"`
	ErrorLimitRemain   *int       `json:"error_limit_remain"`
	ErrorLimitReset    *int       `json:"error_limit_reset"`
	RetryIn            *int       `json:"retry_in,omitempty"`
	InDowntime         bool       `json:"in_downtime"`
	ObservedAt         time.Time  `json:"observed_at"`
	Age                string     `json:"age"`
	ConsecutiveOffline int        `json:"consecutive_offline"`
	TotalProbes        int        `json:"total_probes"`
	LastHealthyAt      *time.Time `json:"last_healthy_at"`
}

// NewLastCmd creates the last command.
func NewLastCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "last",
		Short: "Show the last recorded probe",
		Long: `Show the last probe recorded with "esigate check --record" or
"esigate watch --record", together with the offline streak.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			if reset {
				if err := app.Ledger.Reset(); err != nil {
					return fmt.Errorf("clearing ledger: %w", err)
				}
				return app.OK(map[string]any{"reset": true},
					output.WithSummary("Probe ledger cleared"),
				)
			}

			state, err := app.Ledger.Last()
			if err != nil {
				return fmt.Errorf("reading ledger: %w", err)
			}
			if state.Last == nil {
				return output.ErrUsageHint("No probe recorded yet", "Run: esigate check --record")
			}

			rec := state.Last
			age, _ := state.Age(time.Now())
			report := LastReport{
				Health:             rec.Health,
				IsOnline:           rec.Status.IsOnline(),
				InDowntime:         rec.InDowntime,
				ObservedAt:         rec.ObservedAt,
				Age:                age.Truncate(time.Second).String(),
				ConsecutiveOffline: state.ConsecutiveOffline,
				TotalProbes:        state.TotalProbes,
			}
			if remain, ok := rec.Status.ErrorLimitRemain(); ok {
				report.ErrorLimitRemain = &remain
			}
			if r, ok := rec.Status.ErrorLimitReset(); ok {
				report.ErrorLimitReset = &r
			}
			if rec.RetryIn > 0 {
				retryIn := rec.RetryIn
				report.RetryIn = &retryIn
			}
			if !state.LastHealthyAt.IsZero() {
				healthy := state.LastHealthyAt
				report.LastHealthyAt = &healthy
			}

			return app.OK(report,
				output.WithSummary(fmt.Sprintf("Last probe: %s, %s ago", rec.Health, report.Age)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "check",
					Cmd:         "esigate check --record",
					Description: "Probe again",
				}),
			)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the recorded history")

	return cmd
}
