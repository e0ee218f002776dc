package esi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/evetools/esigate/internal/version"
)

const (
	// DefaultStatusURL is the ESI status endpoint.
	DefaultStatusURL = "https://esi.evetech.net/latest/status/"

	// MaxRetries bounds the retries on 502, 503 and 504 responses.
	MaxRetries = 3

	// HeaderErrorLimitRemain carries the remaining error budget.
	HeaderErrorLimitRemain = "X-Esi-Error-Limit-Remain"
	// HeaderErrorLimitReset carries the seconds until the budget resets.
	HeaderErrorLimitReset = "X-Esi-Error-Limit-Reset"

	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 30 * time.Second
	backoffBase           = 100 * time.Millisecond
	maxBodyBytes          = 1 << 20
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	StatusURL      string
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// Downtime is skipped without a request unless IgnoreDowntime is set.
	Downtime       Window
	IgnoreDowntime bool
}

// DefaultFetcherConfig returns the configuration for the public ESI.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		StatusURL:      DefaultStatusURL,
		UserAgent:      version.UserAgent(),
		ConnectTimeout: defaultConnectTimeout,
		ReadTimeout:    defaultReadTimeout,
		Downtime:       DefaultWindow(),
	}
}

// Fetcher probes the ESI status endpoint.
type Fetcher struct {
	cfg        FetcherConfig
	httpClient *http.Client
	logger     *slog.Logger
	hooks      Hooks
	rand       Rand
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the timeout-configured default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithLogger sets the logger for warnings and debug output.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithHooks sets observability hooks.
func WithHooks(h Hooks) Option {
	return func(f *Fetcher) { f.hooks = h }
}

// WithRand sets the random source for backoff.
func WithRand(r Rand) Option {
	return func(f *Fetcher) { f.rand = r }
}

// WithClock sets the clock used for the downtime check.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// NewFetcher creates a Fetcher. Zero config values take their defaults,
// except Downtime, which is used as given.
func NewFetcher(cfg FetcherConfig, opts ...Option) *Fetcher {
	if cfg.StatusURL == "" {
		cfg.StatusURL = DefaultStatusURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	f := &Fetcher{
		cfg:   cfg,
		hooks: NopHooks{},
		rand:  DefaultRand(),
		now:   nowUTC,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

func newHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: connectTimeout + readTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Config returns the effective configuration.
func (f *Fetcher) Config() FetcherConfig {
	return f.cfg
}

// InDowntime reports whether now falls in the configured daily downtime.
// It ignores IgnoreDowntime.
func (f *Fetcher) InDowntime() bool {
	return f.cfg.Downtime.Contains(f.now())
}

// Fetch reports ESI as offline during the daily downtime without making a
// request. Otherwise, or when IgnoreDowntime is set, it calls Probe.
func (f *Fetcher) Fetch(ctx context.Context) Status {
	s, _ := f.FetchOrSkip(ctx)
	return s
}

// FetchOrSkip is Fetch that also reports whether the downtime gate answered
// offline without making a request.
func (f *Fetcher) FetchOrSkip(ctx context.Context) (status Status, skipped bool) {
	if !f.cfg.IgnoreDowntime && f.InDowntime() {
		f.logger.Debug("ESI daily downtime, skipping status request", "window", f.cfg.Downtime.String())
		return OfflineStatus(), true
	}
	return f.Probe(ctx), false
}

// Probe requests the ESI status and interprets the response. It never fails:
// network errors and unreadable responses are reported as offline.
func (f *Fetcher) Probe(ctx context.Context) Status {
	resp, err := f.request(ctx)
	if err != nil {
		f.logger.Warn("Network error when trying to call ESI", "url", f.cfg.StatusURL, "error", err)
		return OfflineStatus()
	}

	online := isOnline(resp.statusCode, resp.body)
	remainRaw := resp.header.Get(HeaderErrorLimitRemain)
	resetRaw := resp.header.Get(HeaderErrorLimitReset)
	status, ok := parseStatus(online, remainRaw, resetRaw)
	if !ok {
		f.logger.Warn("Failed to parse HTTP headers",
			"remain", remainRaw,
			"reset", resetRaw,
			"status_code", resp.statusCode)
	}

	f.logger.Debug("ESI status", "status", status.String())
	return status
}

// response is a fully read HTTP response.
type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

// request performs the GET, retrying on 502, 503 and 504 up to MaxRetries
// times. After the last retry the final response is returned as is.
func (f *Fetcher) request(ctx context.Context) (*response, error) {
	for retries := 0; ; retries++ {
		resp, err := f.attempt(ctx, retries+1)
		if err != nil {
			return nil, err
		}
		if !isRetryableStatus(resp.statusCode) || retries >= MaxRetries {
			return resp, nil
		}

		f.logger.Warn(fmt.Sprintf("HTTP status code %d - Retry %d/%d", resp.statusCode, retries+1, MaxRetries))
		f.hooks.OnRetry(ctx, RequestInfo{Method: http.MethodGet, URL: f.cfg.StatusURL, Attempt: retries + 1}, retries+1, resp.statusCode)

		if err := f.sleep(ctx, f.backoffDelay(retries+1)); err != nil {
			return nil, err
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, attempt int) (*response, error) {
	info := RequestInfo{Method: http.MethodGet, URL: f.cfg.StatusURL, Attempt: attempt}
	ctx = f.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	resp, err := f.do(ctx)

	result := RequestResult{Duration: time.Since(start), Err: err}
	if resp != nil {
		result.StatusCode = resp.statusCode
	}
	f.hooks.OnRequestEnd(ctx, info, result)
	return resp, err
}

func (f *Fetcher) do(ctx context.Context) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.StatusURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &response{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       body,
	}, nil
}

// backoffDelay returns 0.1s * uniform(2,4)^(retry-1).
func (f *Fetcher) backoffDelay(retry int) time.Duration {
	factor := math.Pow(Uniform(f.rand, 2, 4), float64(retry-1))
	return time.Duration(float64(backoffBase) * factor)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout: // 502, 503, 504
		return true
	default:
		return false
	}
}

// isOnline interprets a response. Error statuses, bodies that are not a
// JSON object and a truthy "vip" field all count as offline.
func isOnline(statusCode int, body []byte) bool {
	if statusCode >= http.StatusBadRequest {
		return false
	}
	if !gjson.ValidBytes(body) {
		return false
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return false
	}
	return !truthy(root.Get("vip"))
}

// truthy mirrors the loose truthiness ESI clients apply to "vip".
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		if r.IsObject() {
			return len(r.Map()) > 0
		}
		return len(r.Array()) > 0
	default:
		return false
	}
}

func nowUTC() time.Time { return time.Now().UTC() }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
