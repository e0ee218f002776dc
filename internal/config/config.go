// Package config provides layered configuration loading.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evetools/esigate/internal/esi"
	"github.com/evetools/esigate/internal/hostutil"
	"github.com/evetools/esigate/internal/version"
)

// Config holds the resolved configuration.
type Config struct {
	// Endpoint settings
	StatusURL      string        `yaml:"status_url" json:"status_url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// Daily downtime window in fractional hours
	DowntimeStart  float64 `yaml:"downtime_start" json:"downtime_start"`
	DowntimeEnd    float64 `yaml:"downtime_end" json:"downtime_end"`
	IgnoreDowntime bool    `yaml:"ignore_downtime" json:"ignore_downtime"`

	// Evaluation
	ErrorLimitThreshold int `yaml:"error_limit_threshold" json:"error_limit_threshold"`
	MaxJitter           int `yaml:"max_jitter" json:"max_jitter"`

	// CLI behavior
	StateDir      string        `yaml:"state_dir" json:"state_dir"`
	WatchInterval time.Duration `yaml:"watch_interval" json:"watch_interval"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `yaml:"-" json:"-"`

	// Files lists the config files that were read, in load order.
	Files []string `yaml:"-" json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceSystem   Source = "system"
	SourceGlobal   Source = "global"
	SourceExplicit Source = "file"
	SourceEnv      Source = "env"
	SourceFlag     Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	ConfigFile     string
	StatusURL      string
	StateDir       string
	IgnoreDowntime bool
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	window := esi.DefaultWindow()
	return &Config{
		StatusURL:           esi.DefaultStatusURL,
		ConnectTimeout:      5 * time.Second,
		ReadTimeout:         30 * time.Second,
		DowntimeStart:       window.Start,
		DowntimeEnd:         window.End,
		ErrorLimitThreshold: esi.DefaultErrorLimitThreshold,
		MaxJitter:           esi.DefaultMaxJitter,
		StateDir:            filepath.Join(cacheDir, version.Name),
		WatchInterval:       time.Minute,
		Sources:             make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > explicit file > global > system > defaults
//
// A missing system or global file is skipped. A missing or malformed
// explicit file is an error.
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)

	if overrides.ConfigFile != "" {
		if err := LoadFile(cfg, overrides.ConfigFile); err != nil {
			return nil, err
		}
	}

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	return cfg, nil
}

// LoadFile applies an explicitly named config file.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is given by the user
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := apply(cfg, data, path, SourceExplicit); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}
	if err := apply(cfg, data, path, source); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
	}
}

// apply overlays the keys present in a YAML document onto cfg. Values of
// the wrong type are reported, and nothing is applied from a document that
// has any.
func apply(cfg *Config, data []byte, path string, source Source) error {
	var fileCfg map[string]any
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return err
	}

	next := *cfg
	next.Sources = make(map[string]string, len(cfg.Sources))
	for k, v := range cfg.Sources {
		next.Sources[k] = v
	}

	var errs []error
	set := func(key string, fn func(v any) error) {
		v, ok := fileCfg[key]
		if !ok || v == nil {
			return
		}
		if err := fn(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		next.Sources[key] = string(source)
	}

	set("status_url", func(v any) error { return assignString(&next.StatusURL, v) })
	set("connect_timeout", func(v any) error { return assignDuration(&next.ConnectTimeout, v) })
	set("read_timeout", func(v any) error { return assignDuration(&next.ReadTimeout, v) })
	set("downtime_start", func(v any) error { return assignFloat(&next.DowntimeStart, v) })
	set("downtime_end", func(v any) error { return assignFloat(&next.DowntimeEnd, v) })
	set("ignore_downtime", func(v any) error { return assignBool(&next.IgnoreDowntime, v) })
	set("error_limit_threshold", func(v any) error { return assignInt(&next.ErrorLimitThreshold, v) })
	set("max_jitter", func(v any) error { return assignInt(&next.MaxJitter, v) })
	set("state_dir", func(v any) error { return assignString(&next.StateDir, v) })
	set("watch_interval", func(v any) error { return assignDuration(&next.WatchInterval, v) })

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	next.Files = append(append([]string(nil), cfg.Files...), path)
	*cfg = next
	return nil
}

func assignString(dst *string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected a string, got %T", v)
	}
	if s != "" {
		*dst = s
	}
	return nil
}

func assignBool(dst *bool, v any) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("expected true or false, got %T", v)
	}
	*dst = b
	return nil
}

func assignInt(dst *int, v any) error {
	switch n := v.(type) {
	case int:
		*dst = n
	case float64:
		if n != math.Trunc(n) {
			return fmt.Errorf("expected an integer, got %v", n)
		}
		*dst = int(n)
	default:
		return fmt.Errorf("expected an integer, got %T", v)
	}
	return nil
}

func assignFloat(dst *float64, v any) error {
	switch n := v.(type) {
	case int:
		*dst = float64(n)
	case float64:
		*dst = n
	default:
		return fmt.Errorf("expected a number, got %T", v)
	}
	return nil
}

// assignDuration accepts Go duration strings ("30s") or a number of seconds.
func assignDuration(dst *time.Duration, v any) error {
	switch d := v.(type) {
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return err
		}
		*dst = parsed
	case int:
		*dst = time.Duration(d) * time.Second
	case float64:
		*dst = time.Duration(d * float64(time.Second))
	default:
		return fmt.Errorf("expected a duration, got %T", v)
	}
	return nil
}

// envVars maps config keys to environment variables, highest priority last.
// The APPUTILS_* names are the legacy setting names.
var envVars = []struct {
	key  string
	name string
}{
	{"status_url", "ESIGATE_STATUS_URL"},
	{"connect_timeout", "ESIGATE_CONNECT_TIMEOUT"},
	{"read_timeout", "ESIGATE_READ_TIMEOUT"},
	{"downtime_start", "APPUTILS_ESI_DAILY_DOWNTIME_START"},
	{"downtime_start", "ESIGATE_DOWNTIME_START"},
	{"downtime_end", "APPUTILS_ESI_DAILY_DOWNTIME_END"},
	{"downtime_end", "ESIGATE_DOWNTIME_END"},
	{"ignore_downtime", "ESIGATE_IGNORE_DOWNTIME"},
	{"error_limit_threshold", "APPUTILS_ESI_ERROR_LIMIT_THRESHOLD"},
	{"error_limit_threshold", "ESIGATE_ERROR_LIMIT_THRESHOLD"},
	{"max_jitter", "ESIGATE_MAX_JITTER"},
	{"state_dir", "ESIGATE_STATE_DIR"},
	{"watch_interval", "ESIGATE_WATCH_INTERVAL"},
}

// LoadFromEnv loads configuration from environment variables.
// Unparseable values are ignored with a warning on stderr.
func LoadFromEnv(cfg *Config) {
	for _, ev := range envVars {
		v := os.Getenv(ev.name)
		if v == "" {
			continue
		}
		if err := setFromString(cfg, ev.key, v); err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s=%q: %v\n", ev.name, v, err)
			continue
		}
		cfg.Sources[ev.key] = string(SourceEnv)
	}
}

func setFromString(cfg *Config, key, v string) error {
	v = strings.TrimSpace(v)
	switch key {
	case "status_url":
		cfg.StatusURL = v
	case "state_dir":
		cfg.StateDir = v
	case "connect_timeout", "read_timeout", "watch_interval":
		d, err := parseEnvDuration(v)
		if err != nil {
			return err
		}
		switch key {
		case "connect_timeout":
			cfg.ConnectTimeout = d
		case "read_timeout":
			cfg.ReadTimeout = d
		default:
			cfg.WatchInterval = d
		}
	case "downtime_start", "downtime_end":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		if key == "downtime_start" {
			cfg.DowntimeStart = f
		} else {
			cfg.DowntimeEnd = f
		}
	case "error_limit_threshold", "max_jitter":
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if key == "max_jitter" {
			cfg.MaxJitter = n
		} else {
			cfg.ErrorLimitThreshold = n
		}
	case "ignore_downtime":
		b, ok := parseEnvBool(v)
		if !ok {
			return fmt.Errorf("expected true or false")
		}
		cfg.IgnoreDowntime = b
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

// parseEnvDuration accepts "30s" style durations or a bare number of seconds.
func parseEnvDuration(v string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// parseEnvBool parses a boolean environment variable strictly.
// Returns (value, true) for recognized values, (false, false) for unrecognized.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.StatusURL != "" {
		cfg.StatusURL = hostutil.NormalizeStatusURL(o.StatusURL)
		cfg.Sources["status_url"] = string(SourceFlag)
	}
	if o.StateDir != "" {
		cfg.StateDir = o.StateDir
		cfg.Sources["state_dir"] = string(SourceFlag)
	}
	if o.IgnoreDowntime {
		cfg.IgnoreDowntime = true
		cfg.Sources["ignore_downtime"] = string(SourceFlag)
	}
}

// Validate checks that the configuration is usable.
func (cfg *Config) Validate() error {
	var errs []error
	if err := hostutil.RequireSecureURL(cfg.StatusURL); err != nil {
		errs = append(errs, fmt.Errorf("status_url: %w", err))
	}
	if err := cfg.Window().Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.ErrorLimitThreshold < 0 {
		errs = append(errs, fmt.Errorf("error_limit_threshold must not be negative, got %d", cfg.ErrorLimitThreshold))
	}
	if cfg.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", cfg.ConnectTimeout))
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("read_timeout must be positive, got %s", cfg.ReadTimeout))
	}
	if cfg.WatchInterval < time.Second {
		errs = append(errs, fmt.Errorf("watch_interval must be at least 1s, got %s", cfg.WatchInterval))
	}
	return errors.Join(errs...)
}

// Window returns the configured daily downtime.
func (cfg *Config) Window() esi.Window {
	return esi.Window{Start: cfg.DowntimeStart, End: cfg.DowntimeEnd}
}

// FetcherConfig converts the configuration for esi.NewFetcher.
func (cfg *Config) FetcherConfig() esi.FetcherConfig {
	return esi.FetcherConfig{
		StatusURL:      cfg.StatusURL,
		UserAgent:      version.UserAgent(),
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		Downtime:       cfg.Window(),
		IgnoreDowntime: cfg.IgnoreDowntime,
	}
}

// EvaluatorConfig converts the configuration for esi.NewEvaluator.
func (cfg *Config) EvaluatorConfig() esi.EvaluatorConfig {
	return esi.EvaluatorConfig{
		ErrorLimitThreshold: cfg.ErrorLimitThreshold,
		MaxJitter:           cfg.MaxJitter,
	}
}

// Source returns where key was last set, or "default".
func (cfg *Config) Source(key string) string {
	if s, ok := cfg.Sources[key]; ok {
		return s
	}
	return string(SourceDefault)
}

// Keys lists the configuration keys in display order.
func Keys() []string {
	return []string{
		"status_url",
		"connect_timeout",
		"read_timeout",
		"downtime_start",
		"downtime_end",
		"ignore_downtime",
		"error_limit_threshold",
		"max_jitter",
		"state_dir",
		"watch_interval",
	}
}

// Value returns the display form of key.
func (cfg *Config) Value(key string) string {
	switch key {
	case "status_url":
		return cfg.StatusURL
	case "connect_timeout":
		return cfg.ConnectTimeout.String()
	case "read_timeout":
		return cfg.ReadTimeout.String()
	case "downtime_start":
		return strconv.FormatFloat(cfg.DowntimeStart, 'f', -1, 64)
	case "downtime_end":
		return strconv.FormatFloat(cfg.DowntimeEnd, 'f', -1, 64)
	case "ignore_downtime":
		return strconv.FormatBool(cfg.IgnoreDowntime)
	case "error_limit_threshold":
		return strconv.Itoa(cfg.ErrorLimitThreshold)
	case "max_jitter":
		return strconv.Itoa(cfg.MaxJitter)
	case "state_dir":
		return cfg.StateDir
	case "watch_interval":
		return cfg.WatchInterval.String()
	default:
		return ""
	}
}

// Path helpers

// FilePaths returns the config files Load consults, in load order.
func FilePaths(explicit string) []string {
	paths := []string{systemConfigPath(), globalConfigPath()}
	if explicit != "" {
		paths = append(paths, explicit)
	}
	return paths
}

func systemConfigPath() string {
	return filepath.Join("/etc", version.Name, "config.yaml")
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, version.Name)
}
