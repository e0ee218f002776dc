package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/dateparse"
	"github.com/evetools/esigate/internal/output"
)

// DowntimeReport describes the daily downtime window relative to an instant.
type DowntimeReport struct {
	Window         string    `json:"window"`
	At             time.Time `json:"at"`
	InDowntime     bool      `json:"in_downtime"`
	IgnoreDowntime bool      `json:"ignore_downtime"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	NextStart      time.Time `json:"next_start"`
}

// NewDowntimeCmd creates the downtime command.
func NewDowntimeCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "downtime",
		Short: "Show the daily downtime window",
		Long: `Show the configured daily downtime window and whether an instant falls
inside it. The window is evaluated in UTC, like ESI's own schedule; both
ends are inclusive.`,
		Example: `  esigate downtime
  esigate downtime --at 11:05
  esigate downtime --at "tomorrow 11:10"
  esigate downtime --at 2021-06-29T11:05:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			now, err := parseAt(at, clock().UTC())
			if err != nil {
				return err
			}
			now = now.UTC()

			window := app.Config.Window()
			start, end := window.Bounds(now)
			next := start
			if !now.Before(start) {
				next = start.AddDate(0, 0, 1)
			}

			report := DowntimeReport{
				Window:         window.String(),
				At:             now,
				InDowntime:     window.Contains(now),
				IgnoreDowntime: app.Config.IgnoreDowntime,
				Start:          start,
				End:            end,
				NextStart:      next,
			}

			summary := fmt.Sprintf("Daily downtime %s, next at %s", report.Window, next.Format("2006-01-02 15:04"))
			if report.InDowntime {
				summary = fmt.Sprintf("In daily downtime %s, ESI reports offline", report.Window)
			}
			return app.OK(report, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Instant to check: HH:MM, \"tomorrow 11:05\", +30m or RFC 3339 (UTC)")

	return cmd
}

// clock is the current time for downtime reports. Tests replace it.
var clock = func() time.Time { return time.Now().UTC() }

// parseAt resolves --at relative to now. Empty means now.
func parseAt(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	if t, ok := dateparse.ParseFrom(value, now); ok {
		return t, nil
	}
	return time.Time{}, output.ErrUsageHint(
		fmt.Sprintf("Invalid --at value %q", value),
		"Use HH:MM, \"tomorrow HH:MM\", +30m or an RFC 3339 timestamp",
	)
}
