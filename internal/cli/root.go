package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/commands"
	"github.com/evetools/esigate/internal/config"
	"github.com/evetools/esigate/internal/output"
	"github.com/evetools/esigate/internal/version"
)

// NewRootCmd creates the root cobra command. Options are passed to the App
// built before each command runs.
func NewRootCmd(opts ...appctx.Option) *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "Gate work on the health of EVE Online's ESI API",
		Long: `esigate probes the ESI status endpoint and decides whether it is safe to
call ESI now. It reports the API as offline during the daily downtime
window, on failed probes, and when the error-limit budget runs low.`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				ConfigFile: flags.ConfigFile,
				StatusURL:  flags.StatusURL,
				StateDir:   flags.StateDir,
			})
			if err != nil {
				return output.ErrConfig(err)
			}
			if err := cfg.Validate(); err != nil {
				return output.ErrConfig(err)
			}

			app := appctx.NewApp(cfg, append([]appctx.Option{
				appctx.WithStreams(cmd.OutOrStdout(), cmd.ErrOrStderr()),
			}, opts...)...)
			app.Flags = flags
			if err := app.ApplyFlags(); err != nil {
				return err
			}

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter the JSON envelope with a jq expression")

	// Config flags
	cmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "Config file (YAML)")
	cmd.PersistentFlags().StringVar(&flags.StatusURL, "status-url", "", "ESI status endpoint or host")
	cmd.PersistentFlags().StringVar(&flags.StateDir, "state-dir", "", "Directory for the probe ledger")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for verdicts and retries, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	cmd.SetVersionTemplate("{{.Version}}\n")

	return cmd
}

// Execute runs the root command and exits with its exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes the CLI with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...appctx.Option) int {
	cmd := NewRootCmd(opts...)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(commands.NewCheckCmd())
	cmd.AddCommand(commands.NewGuardCmd())
	cmd.AddCommand(commands.NewDowntimeCmd())
	cmd.AddCommand(commands.NewWatchCmd())
	cmd.AddCommand(commands.NewLastCmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewDoctorCmd())
	cmd.AddCommand(commands.NewVersionCmd())

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	// Try to use app.Err() if app is available (for --stats support)
	if executedCmd != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return apiErr.ExitCode()
		}
	}

	// Fallback: output error directly (app not available, e.g., during setup)
	_ = fallbackWriter(cmd, stdout).Err(err, nil)
	return apiErr.ExitCode()
}

// fallbackWriter builds an output writer from the raw flag values.
func fallbackWriter(cmd *cobra.Command, w io.Writer) *output.Writer {
	pf := cmd.PersistentFlags()
	quiet, _ := pf.GetBool("quiet")
	jsonFlag, _ := pf.GetBool("json")
	styled, _ := pf.GetBool("styled")

	format := output.FormatAuto
	switch {
	case quiet:
		format = output.FormatQuiet
	case jsonFlag:
		format = output.FormatJSON
	case styled:
		format = output.FormatStyled
	}
	return output.New(output.Options{Format: format, Writer: w})
}

var shorthandFlagRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError turns cobra's parse errors into usage errors with
// friendlier messages.
func transformCobraError(err error) error {
	if output.AsError(err).Code != output.CodeAPI {
		return err
	}
	msg := err.Error()

	// "flag needs an argument: --FLAG" → "--FLAG requires a value"
	if flag, ok := strings.CutPrefix(msg, "flag needs an argument: "); ok {
		return output.ErrUsage(flag + " requires a value")
	}

	// "unknown flag: --FLAG" → "Unknown option: --FLAG"
	if flag, ok := strings.CutPrefix(msg, "unknown flag: "); ok {
		return output.ErrUsage("Unknown option: " + flag)
	}

	// "unknown shorthand flag: 'X' in -X" → "Unknown option: -X"
	if matches := shorthandFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
		return output.ErrUsage("Unknown option: " + matches[1])
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run: esigate --help")
	}

	if strings.Contains(msg, "invalid argument") || strings.Contains(msg, "arg(s)") {
		return output.ErrUsage(msg)
	}

	return err
}
