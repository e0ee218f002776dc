package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/config"
	"github.com/evetools/esigate/internal/esi"
	"github.com/evetools/esigate/internal/output"
)

// watchAfter waits between probes. Tests replace it.
var watchAfter = time.After

type watchOptions struct {
	interval time.Duration
	count    int
	record   bool
	all      bool

	ignoreDowntime bool
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe ESI repeatedly and report health changes",
		Long: `Probe ESI every interval and print a line whenever its health changes.

Config files are watched and reloaded on change; an invalid edit is logged
and the previous configuration is kept. Stop with Ctrl-C.`,
		Example: `  esigate watch
  esigate watch --interval 30s --record
  esigate watch --json --all | jq -c .data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if opts.interval != 0 && opts.interval < time.Second {
				return output.ErrUsage("--interval must be at least 1s")
			}
			if opts.count < 0 {
				return output.ErrUsage("--count must not be negative")
			}
			if opts.ignoreDowntime {
				config.ApplyOverrides(app.Config, config.FlagOverrides{IgnoreDowntime: true})
				app.SetConfig(app.Config)
			}
			return runWatch(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", 0, "Time between probes (default from watch_interval)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Stop after this many probes (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Record every probe in the ledger")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Print every probe, not only changes")
	cmd.Flags().BoolVar(&opts.ignoreDowntime, "ignore-downtime", false, "Probe even during the daily downtime window")

	return cmd
}

func runWatch(ctx context.Context, app *appctx.App, opts watchOptions) error {
	reload := make(chan struct{}, 1)
	stop, err := watchConfigFiles(config.FilePaths(app.Flags.ConfigFile), reload)
	if err != nil {
		app.Logger.Warn("Config reload disabled", "error", err)
	} else {
		defer stop()
	}

	var last *esi.Health
	probes := 0
	for {
		p := probe(ctx, app)
		if ctx.Err() != nil {
			return nil
		}
		probes++

		if opts.record {
			if _, err := app.Ledger.Record(p.Status, p.Verdict, p.InDowntime); err != nil {
				app.Logger.Warn("Failed to record probe", "error", err)
			}
		}

		if opts.all || last == nil || *last != p.Verdict.Health {
			if err := app.OK(p.report(app.Config.StatusURL), output.WithSummary(p.summary())); err != nil {
				return err
			}
		}
		health := p.Verdict.Health
		last = &health

		if opts.count > 0 && probes >= opts.count {
			return nil
		}

		interval := opts.interval
		if interval == 0 {
			interval = app.Config.WatchInterval
		}

		onReload := func() { reloadConfig(app, opts.ignoreDowntime) }
		if !waitInterval(ctx, watchAfter(interval), reload, onReload) {
			return nil
		}
	}
}

// waitInterval blocks until wait fires, calling onReload for every reload
// signal in between. A reload does not restart the interval. It returns
// false when ctx is done.
func waitInterval(ctx context.Context, wait <-chan time.Time, reload <-chan struct{}, onReload func()) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-reload:
			onReload()
		case <-wait:
			return true
		}
	}
}

// reloadConfig reloads configuration with the original flag overrides. The
// current configuration is kept when the new one does not load or validate.
func reloadConfig(app *appctx.App, ignoreDowntime bool) bool {
	cfg, err := config.Load(config.FlagOverrides{
		ConfigFile:     app.Flags.ConfigFile,
		StatusURL:      app.Flags.StatusURL,
		StateDir:       app.Flags.StateDir,
		IgnoreDowntime: ignoreDowntime,
	})
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		app.Logger.Warn("Config reload failed, keeping previous configuration", "error", err)
		return false
	}
	app.SetConfig(cfg)
	app.Logger.Info("Configuration reloaded", "status_url", cfg.StatusURL, "downtime", cfg.Window().String())
	return true
}

// watchConfigFiles signals on reload whenever one of paths is written,
// created, renamed or removed. Editors often replace files, so the parent
// directories are watched rather than the files themselves.
func watchConfigFiles(paths []string, reload chan<- struct{}) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := w.Add(dir); err == nil {
			dirs[dir] = true
		}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !targets[filepath.Clean(ev.Name)] {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				select {
				case reload <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		_ = w.Close()
	}, nil
}
