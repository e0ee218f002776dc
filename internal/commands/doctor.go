package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/config"
	"github.com/evetools/esigate/internal/output"
	"github.com/evetools/esigate/internal/version"
)

// Check represents a single diagnostic check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "fail", "skip", "warn"
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// DoctorResult holds the complete diagnostic results.
type DoctorResult struct {
	Checks  []Check `json:"checks"`
	Passed  int     `json:"passed"`
	Failed  int     `json:"failed"`
	Warned  int     `json:"warned"`
	Skipped int     `json:"skipped"`
}

// Summary returns a human-readable summary of the results.
func (r *DoctorResult) Summary() string {
	if r.Failed == 0 && r.Warned == 0 && r.Passed > 0 {
		if r.Skipped > 0 {
			return fmt.Sprintf("All %d checks passed, %d skipped", r.Passed, r.Skipped)
		}
		return fmt.Sprintf("All %d checks passed", r.Passed)
	}
	parts := []string{}
	if r.Passed > 0 {
		parts = append(parts, fmt.Sprintf("%d passed", r.Passed))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Warned > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", r.Warned, pluralize(r.Warned, "warning", "warnings")))
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	return strings.Join(parts, ", ")
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	var skipNetwork bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check esigate setup and diagnose issues",
		Long: `Run diagnostic checks on configuration, the state directory and the ESI
status endpoint.

The doctor command helps troubleshoot common issues by checking:
  - Configuration files (existence and validity)
  - Probe ledger directory (writable)
  - Daily downtime window
  - ESI connectivity, probing even during downtime
  - Remaining ESI error budget`,
		Example: `  esigate doctor                  # Run all diagnostic checks
  esigate doctor --json           # Output results as JSON
  esigate doctor --skip-network   # Skip the ESI checks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			checks := runDoctorChecks(cmd.Context(), app, skipNetwork)
			result := summarizeChecks(checks)

			// For styled/TTY output, render a human-friendly format
			if app.Output.EffectiveFormat() == output.FormatStyled {
				renderDoctorStyled(cmd.OutOrStdout(), result, app.Flags.Styled)
				return nil
			}

			opts := []output.ResponseOption{
				output.WithSummary(result.Summary()),
			}
			if breadcrumbs := buildDoctorBreadcrumbs(checks); len(breadcrumbs) > 0 {
				opts = append(opts, output.WithBreadcrumbs(breadcrumbs...))
			}

			return app.OK(result, opts...)
		},
	}

	cmd.Flags().BoolVar(&skipNetwork, "skip-network", false, "Skip checks that contact ESI")

	return cmd
}

// runDoctorChecks executes all diagnostic checks.
func runDoctorChecks(ctx context.Context, app *appctx.App, skipNetwork bool) []Check {
	verbose := app.Flags.Verbose > 0
	checks := []Check{checkVersion(verbose)}

	if verbose {
		checks = append(checks, checkRuntime())
	}

	checks = append(checks, checkConfigFiles(app, verbose)...)
	checks = append(checks, checkStateDir(app))
	checks = append(checks, checkDowntime(app, clock()))

	if skipNetwork {
		checks = append(checks,
			Check{Name: "ESI Connectivity", Status: "skip", Message: "Skipped (--skip-network)"},
			Check{Name: "Error Budget", Status: "skip", Message: "Skipped (--skip-network)"},
		)
		return checks
	}

	return append(checks, checkESI(ctx, app)...)
}

// checkVersion reports the CLI version.
func checkVersion(verbose bool) Check {
	check := Check{
		Name:    "CLI Version",
		Status:  "pass",
		Message: version.Version,
	}
	if version.IsDev() {
		check.Message = "dev (built from source)"
	}
	if verbose {
		check.Message += fmt.Sprintf(" [commit: %s, date: %s]", version.Commit, version.Date)
	}
	return check
}

// checkRuntime returns Go runtime information.
func checkRuntime() Check {
	return Check{
		Name:    "Runtime",
		Status:  "pass",
		Message: fmt.Sprintf("Go %s (%s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

// checkConfigFiles checks each config file location for existence and
// validity.
func checkConfigFiles(app *appctx.App, verbose bool) []Check {
	checks := []Check{}
	names := []string{"System Config", "Global Config", "Config File"}

	for i, path := range config.FilePaths(app.Flags.ConfigFile) {
		name := names[min(i, len(names)-1)]
		if _, err := os.Stat(path); err != nil {
			if verbose || i == 1 {
				checks = append(checks, Check{
					Name:    name,
					Status:  "skip",
					Message: "Not found (using defaults)",
					Hint:    fmt.Sprintf("Create %s to persist settings", path),
				})
			}
			continue
		}
		if err := config.LoadFile(config.Default(), path); err != nil {
			checks = append(checks, Check{
				Name:    name,
				Status:  "fail",
				Message: fmt.Sprintf("Invalid: %s", path),
				Hint:    err.Error(),
			})
			continue
		}
		checks = append(checks, Check{Name: name, Status: "pass", Message: path})
	}

	if verbose {
		details := make([]string, 0, 2)
		for _, key := range []string{"status_url", "state_dir"} {
			details = append(details, fmt.Sprintf("%s=%s [%s]", key, app.Config.Value(key), app.Config.Source(key)))
		}
		checks = append(checks, Check{
			Name:    "Effective Config",
			Status:  "pass",
			Message: strings.Join(details, ", "),
		})
	}

	return checks
}

// checkStateDir verifies the ledger directory is writable and readable.
func checkStateDir(app *appctx.App) Check {
	check := Check{Name: "State Directory"}
	dir := app.Config.StateDir

	if err := os.MkdirAll(dir, 0o700); err != nil {
		check.Status = "fail"
		check.Message = fmt.Sprintf("Cannot create %s", dir)
		check.Hint = err.Error()
		return check
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		check.Status = "fail"
		check.Message = fmt.Sprintf("Not writable: %s", dir)
		check.Hint = err.Error()
		return check
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	state, err := app.Ledger.Last()
	if err != nil {
		check.Status = "warn"
		check.Message = fmt.Sprintf("%s (ledger unreadable)", dir)
		check.Hint = err.Error()
		return check
	}

	check.Status = "pass"
	if !app.Ledger.Recorded() {
		check.Message = fmt.Sprintf("%s (no ledger yet)", dir)
		return check
	}
	check.Message = fmt.Sprintf("%s (%d %s recorded)", dir, state.TotalProbes, pluralize(state.TotalProbes, "probe", "probes"))
	return check
}

// checkDowntime reports whether now falls in the daily downtime window.
func checkDowntime(app *appctx.App, now time.Time) Check {
	window := app.Config.Window()
	check := Check{Name: "Daily Downtime", Status: "pass"}

	switch {
	case app.Config.IgnoreDowntime:
		check.Message = fmt.Sprintf("%s (ignored)", window)
	case window.Contains(now):
		check.Status = "warn"
		check.Message = fmt.Sprintf("In downtime %s, ESI is reported offline", window)
		check.Hint = "Use --ignore-downtime to probe anyway"
	default:
		check.Message = fmt.Sprintf("Outside %s", window)
	}
	return check
}

// checkESI probes the status endpoint, bypassing the downtime window, and
// checks the error budget.
func checkESI(ctx context.Context, app *appctx.App) []Check {
	fetcher := app.Fetcher()
	url := fetcher.Config().StatusURL
	status := fetcher.Probe(ctx)

	if !status.IsOnline() {
		return []Check{
			{
				Name:    "ESI Connectivity",
				Status:  "fail",
				Message: fmt.Sprintf("Offline: %s", url),
				Hint:    "Check network access to the status endpoint, or run with -vv to trace requests",
			},
			{Name: "Error Budget", Status: "skip", Message: "Skipped (ESI offline)"},
		}
	}

	checks := []Check{{Name: "ESI Connectivity", Status: "pass", Message: url}}

	remain, hasRemain := status.ErrorLimitRemain()
	reset, _ := status.ErrorLimitReset()
	budget := Check{Name: "Error Budget"}
	switch {
	case !hasRemain:
		budget.Status = "warn"
		budget.Message = "No error-limit headers in the response"
	case app.Evaluator.IsErrorLimitExceeded(status):
		budget.Status = "warn"
		budget.Message = fmt.Sprintf("%d left, at or below threshold %d; resets in %ds",
			remain, app.Evaluator.Config().ErrorLimitThreshold, reset)
		budget.Hint = "Requests from this address are failing; ESI will block it at zero"
	default:
		budget.Status = "pass"
		budget.Message = fmt.Sprintf("%d left, resets in %ds", remain, reset)
	}
	return append(checks, budget)
}

func summarizeChecks(checks []Check) *DoctorResult {
	result := &DoctorResult{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case "pass":
			result.Passed++
		case "fail":
			result.Failed++
		case "warn":
			result.Warned++
		case "skip":
			result.Skipped++
		}
	}
	return result
}

// buildDoctorBreadcrumbs creates helpful next-step suggestions based on failures.
func buildDoctorBreadcrumbs(checks []Check) []output.Breadcrumb {
	var breadcrumbs []output.Breadcrumb
	seen := make(map[string]bool)

	for _, c := range checks {
		if c.Status != "fail" {
			continue
		}

		var bc output.Breadcrumb
		switch c.Name {
		case "System Config", "Global Config", "Config File", "State Directory":
			bc = output.Breadcrumb{
				Action:      "config",
				Cmd:         "esigate config show",
				Description: "Review configuration",
			}
		case "ESI Connectivity":
			bc = output.Breadcrumb{
				Action:      "check",
				Cmd:         "esigate check --ignore-downtime -vv",
				Description: "Trace the status request",
			}
		default:
			continue
		}
		if !seen[bc.Action] {
			seen[bc.Action] = true
			breadcrumbs = append(breadcrumbs, bc)
		}
	}

	return breadcrumbs
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// renderDoctorStyled outputs a human-friendly styled format for TTY.
func renderDoctorStyled(w io.Writer, result *DoctorResult, forceStyled bool) {
	r := output.NewRenderer(w, forceStyled)

	nameStyle := lipgloss.NewStyle().Bold(true)

	statusIcon := map[string]string{
		"pass": r.Success.Render("✓"),
		"fail": r.Error.Render("✗"),
		"warn": r.Warning.Render("!"),
		"skip": r.Muted.Render("○"),
	}

	statusMsg := map[string]lipgloss.Style{
		"pass": r.Success,
		"fail": r.Error,
		"warn": r.Warning,
		"skip": r.Muted,
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, r.Summary.Render("esigate doctor"))
	fmt.Fprintln(w)

	for _, check := range result.Checks {
		fmt.Fprintf(w, "  %s %s %s\n",
			statusIcon[check.Status],
			nameStyle.Render(check.Name),
			statusMsg[check.Status].Render(check.Message),
		)

		if check.Hint != "" && (check.Status == "fail" || check.Status == "warn") {
			fmt.Fprintf(w, "      %s\n", r.Hint.Render("↳ "+check.Hint))
		}
	}

	fmt.Fprintln(w)

	var summaryParts []string
	if result.Passed > 0 {
		summaryParts = append(summaryParts, r.Success.Render(fmt.Sprintf("%d passed", result.Passed)))
	}
	if result.Failed > 0 {
		summaryParts = append(summaryParts, r.Error.Render(fmt.Sprintf("%d failed", result.Failed)))
	}
	if result.Warned > 0 {
		summaryParts = append(summaryParts, r.Warning.Render(fmt.Sprintf("%d %s", result.Warned, pluralize(result.Warned, "warning", "warnings"))))
	}
	if result.Skipped > 0 {
		summaryParts = append(summaryParts, r.Muted.Render(fmt.Sprintf("%d skipped", result.Skipped)))
	}

	fmt.Fprintf(w, "  %s\n", strings.Join(summaryParts, "  "))
	fmt.Fprintln(w)
}
