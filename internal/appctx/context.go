// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/evetools/esigate/internal/config"
	"github.com/evetools/esigate/internal/esi"
	"github.com/evetools/esigate/internal/observability"
	"github.com/evetools/esigate/internal/output"
	"github.com/evetools/esigate/internal/resilience"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// DebugEnv raises the verbosity level like repeated -v flags.
const DebugEnv = "ESIGATE_DEBUG"

// App holds the shared application context for all commands.
type App struct {
	Config    *config.Config
	Evaluator *esi.Evaluator
	Ledger    *resilience.Ledger
	Output    *output.Writer
	Logger    *slog.Logger

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	stdout, stderr io.Writer
	logLevel       *slog.LevelVar
	fetcher        *esi.Fetcher
	fetcherOpts    []esi.Option
	rand           esi.Rand
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Quiet  bool
	Styled bool
	JQ     string

	// Config flags
	ConfigFile string
	StatusURL  string
	StateDir   string

	// Behavior flags
	Verbose int // 0=off, 1=retries+verdicts, 2=+requests
	Stats   bool
}

// Option configures an App.
type Option func(*App)

// WithStreams sets stdout and stderr.
func WithStreams(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithFetcherOptions appends options used whenever the fetcher is built.
func WithFetcherOptions(opts ...esi.Option) Option {
	return func(a *App) { a.fetcherOpts = append(a.fetcherOpts, opts...) }
}

// WithRand sets the random source for jitter.
func WithRand(r esi.Rand) Option {
	return func(a *App) { a.rand = r }
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, opts ...Option) *App {
	a := &App{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logLevel: new(slog.LevelVar),
		rand:     esi.DefaultRand(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Warnings such as retry notices always reach stderr; ApplyFlags
	// lowers the level for -v.
	a.logLevel.Set(slog.LevelWarn)
	a.Logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: a.logLevel}))

	// Collector always runs to gather stats; hooks control output verbosity
	a.Collector = observability.NewSessionCollector()
	a.Hooks = observability.NewCLIHooks(0, a.Collector, observability.NewTraceWriterTo(a.stderr))

	a.Output = output.New(output.Options{Format: output.FormatAuto, Writer: a.stdout})
	a.SetConfig(cfg)
	return a
}

// SetConfig replaces the configuration and rebuilds the components derived
// from it.
func (a *App) SetConfig(cfg *config.Config) {
	a.Config = cfg
	a.Evaluator = esi.NewEvaluator(cfg.EvaluatorConfig(), a.rand)
	a.Ledger = resilience.NewLedger(resilience.NewStore(cfg.StateDir))
	a.fetcher = nil
}

// Fetcher returns the status fetcher for the current configuration.
func (a *App) Fetcher() *esi.Fetcher {
	if a.fetcher == nil {
		opts := []esi.Option{
			esi.WithLogger(a.Logger),
			esi.WithHooks(a.Hooks),
			esi.WithRand(a.rand),
		}
		a.fetcher = esi.NewFetcher(a.Config.FetcherConfig(), append(opts, a.fetcherOpts...)...)
	}
	return a.fetcher
}

// Rand returns the random source shared by the evaluator and fetcher.
func (a *App) Rand() esi.Rand {
	return a.rand
}

// Stderr returns the diagnostic stream.
func (a *App) Stderr() io.Writer {
	return a.stderr
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() error {
	format := output.FormatAuto
	switch {
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	case a.Flags.Styled:
		format = output.FormatStyled
	}

	var filter *output.Filter
	if a.Flags.JQ != "" {
		f, err := output.ParseFilter(a.Flags.JQ)
		if err != nil {
			return err
		}
		filter = f
	}
	a.Output = output.New(output.Options{Format: format, Writer: a.stdout, Filter: filter})

	level := VerboseLevel(a.Flags.Verbose, os.Getenv(DebugEnv))
	if a.Hooks != nil {
		a.Hooks.SetLevel(level)
	}
	if level > 0 {
		a.logLevel.Set(slog.LevelDebug)
	}
	return nil
}

// VerboseLevel combines the -v count with the debug env value, which may
// be a level number or "true" for full debug output.
func VerboseLevel(flag int, env string) int {
	level := flag
	if env == "" {
		return level
	}
	if n, err := strconv.Atoi(env); err == nil {
		if n > level {
			level = n
		}
	} else if strings.EqualFold(env, "true") {
		level = 2
	}
	return level
}

// OK outputs a success response, automatically including stats if --stats flag is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary().ToMap()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, including stats in meta if --stats flag is set.
func (a *App) Err(err error) error {
	var meta map[string]any
	if a.Flags.Stats && a.Collector != nil {
		meta = map[string]any{"stats": a.Collector.Summary().ToMap()}
	}
	return a.Output.Err(err, meta)
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
