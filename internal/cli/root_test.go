package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evetools/esigate/internal/appctx"
	"github.com/evetools/esigate/internal/esi"
	"github.com/evetools/esigate/internal/output"
	"github.com/evetools/esigate/internal/version"
)

var configEnv = []string{
	"ESIGATE_STATUS_URL", "ESIGATE_CONNECT_TIMEOUT", "ESIGATE_READ_TIMEOUT",
	"ESIGATE_DOWNTIME_START", "ESIGATE_DOWNTIME_END", "ESIGATE_IGNORE_DOWNTIME",
	"ESIGATE_ERROR_LIMIT_THRESHOLD", "ESIGATE_MAX_JITTER", "ESIGATE_STATE_DIR",
	"ESIGATE_WATCH_INTERVAL", "ESIGATE_DEBUG",
	"APPUTILS_ESI_DAILY_DOWNTIME_START", "APPUTILS_ESI_DAILY_DOWNTIME_END",
	"APPUTILS_ESI_ERROR_LIMIT_THRESHOLD",
	"NO_COLOR",
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	for _, name := range configEnv {
		t.Setenv(name, "")
	}
	return dir
}

// esiResponse is what the fake status endpoint answers.
type esiResponse struct {
	code   int
	remain string
	reset  string
	body   string
}

func esiServer(t *testing.T, resp esiResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if resp.remain != "" {
			w.Header().Set(esi.HeaderErrorLimitRemain, resp.remain)
			w.Header().Set(esi.HeaderErrorLimitReset, resp.reset)
		}
		code := resp.code
		if code == 0 {
			code = http.StatusOK
		}
		w.WriteHeader(code)
		body := resp.body
		if body == "" {
			body = `{"players": 21000, "server_version": "2134125", "start_time": "2021-06-29T11:05:23Z"}`
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type result struct {
	code   int
	stdout string
	stderr string
}

// run executes the CLI at 10:00 UTC with retries that do not sleep.
func run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr,
		appctx.WithFetcherOptions(
			esi.WithClock(func() time.Time {
				y, m, d := time.Now().UTC().Date()
				return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
			}),
			esi.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		),
	)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), "output: %s", s)
	return m
}

func TestCheckHealthy(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "100", reset: "30"})

	res := run(t, "check", "--json", "--status-url", srv.URL)

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	env := decode(t, res.stdout)
	assert.Equal(t, true, env["ok"])
	assert.Equal(t, "ESI is healthy", env["summary"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "healthy", data["health"])
	assert.Equal(t, true, data["is_online"])
	assert.Equal(t, float64(100), data["error_limit_remain"])
	assert.Equal(t, float64(30), data["error_limit_reset"])
	assert.Equal(t, srv.URL+"/latest/status/", data["status_url"])
}

func TestCheckOffline(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{code: http.StatusServiceUnavailable})

	res := run(t, "check", "--json", "--status-url", srv.URL)

	require.Equal(t, output.ExitOffline, res.code, res.stdout)
	env := decode(t, res.stdout)
	assert.Equal(t, false, env["ok"])
	assert.Equal(t, output.CodeOffline, env["code"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "offline", data["health"])
	assert.Equal(t, false, data["is_online"])
	assert.Contains(t, res.stderr, "HTTP status code 503 - Retry 3/3")
}

func TestCheckVIPModeIsOffline(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{body: `{"players": 10, "vip": true}`, remain: "100", reset: "30"})

	res := run(t, "check", "--json", "--status-url", srv.URL)

	assert.Equal(t, output.ExitOffline, res.code)
}

func TestCheckErrorLimit(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "10", reset: "30"})

	res := run(t, "check", "--json", "--status-url", srv.URL)

	require.Equal(t, output.ExitErrorLimit, res.code, res.stdout)
	env := decode(t, res.stdout)
	assert.Equal(t, output.CodeErrorLimit, env["code"])
	retryIn, ok := env["retry_in"].(float64)
	require.True(t, ok, "retry_in missing: %s", res.stdout)
	assert.GreaterOrEqual(t, retryIn, float64(31))
	assert.Less(t, retryIn, float64(50))
}

func TestCheckRecordThenLast(t *testing.T) {
	dir := isolate(t)
	srv := esiServer(t, esiResponse{remain: "100", reset: "30"})
	stateDir := filepath.Join(dir, "state")

	res := run(t, "last", "--json", "--state-dir", stateDir)
	require.Equal(t, output.ExitUsage, res.code)
	assert.Contains(t, res.stdout, "No probe recorded yet")

	res = run(t, "check", "--record", "--json", "--status-url", srv.URL, "--state-dir", stateDir)
	require.Equal(t, output.ExitOK, res.code, res.stdout)

	res = run(t, "last", "--json", "--state-dir", stateDir)
	require.Equal(t, output.ExitOK, res.code, res.stdout)
	data := decode(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, "healthy", data["health"])
	assert.Equal(t, float64(1), data["total_probes"])
	assert.Equal(t, float64(0), data["consecutive_offline"])
	assert.NotNil(t, data["last_healthy_at"])

	res = run(t, "last", "--reset", "--json", "--state-dir", stateDir)
	require.Equal(t, output.ExitOK, res.code, res.stdout)
	res = run(t, "last", "--json", "--state-dir", stateDir)
	assert.Equal(t, output.ExitUsage, res.code)
}

func TestGuardHealthy(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "100", reset: "30"})

	res := run(t, "guard", "--json", "--status-url", srv.URL)

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	data := decode(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, true, data["proceed"])
}

func TestGuardOfflineAsksForRetry(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{code: http.StatusBadGateway})

	res := run(t, "guard", "--json", "--reason", "market sync", "--status-url", srv.URL)

	require.Equal(t, output.ExitRetry, res.code, res.stdout)
	env := decode(t, res.stdout)
	assert.Equal(t, output.CodeRetry, env["code"])
	assert.Contains(t, env["error"], "market sync")
	retryIn := env["retry_in"].(float64)
	assert.GreaterOrEqual(t, retryIn, float64(11*60))
	assert.LessOrEqual(t, retryIn, float64(19*60))
	assert.Contains(t, res.stderr, "ESI appears to be offline. Trying again in")
}

func TestGuardErrorLimitAsksForRetry(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "5", reset: "40"})

	res := run(t, "guard", "--json", "--status-url", srv.URL)

	require.Equal(t, output.ExitRetry, res.code, res.stdout)
	assert.Contains(t, res.stderr, "ESI error limit threshold reached. Trying again in")
}

func TestDowntime(t *testing.T) {
	isolate(t)

	res := run(t, "downtime", "--json", "--at", "11:05")
	require.Equal(t, output.ExitOK, res.code, res.stdout)
	data := decode(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, "11:00-11:15", data["window"])
	assert.Equal(t, true, data["in_downtime"])

	res = run(t, "downtime", "--json", "--at", "11:16")
	data = decode(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, false, data["in_downtime"])

	res = run(t, "downtime", "--json", "--at", "someday")
	assert.Equal(t, output.ExitUsage, res.code)
	assert.Contains(t, res.stdout, "Invalid --at value")
}

func TestDowntimeFromConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "esigate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("downtime_start: 12.5\ndowntime_end: 13\n"), 0o644))

	res := run(t, "downtime", "--json", "--config", path, "--at", "12:45")

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	data := decode(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, "12:30-13:00", data["window"])
	assert.Equal(t, true, data["in_downtime"])
}

func TestConfigShow(t *testing.T) {
	isolate(t)

	res := run(t, "config", "show", "--json", "--status-url", "esi.example.com")

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	entries := decode(t, res.stdout)["data"].([]any)
	found := false
	for _, e := range entries {
		entry := e.(map[string]any)
		if entry["key"] == "status_url" {
			found = true
			assert.Equal(t, "https://esi.example.com/latest/status/", entry["value"])
			assert.Equal(t, "flag", entry["source"])
		}
	}
	assert.True(t, found, "status_url entry missing")
}

func TestInvalidConfig(t *testing.T) {
	isolate(t)

	res := run(t, "check", "--json", "--status-url", "http://esi.example.com/latest/status/")

	require.Equal(t, output.ExitUsage, res.code)
	env := decode(t, res.stdout)
	assert.Equal(t, "Invalid configuration", env["error"])
	assert.Contains(t, env["hint"], "insecure http:// URL")
}

func TestMissingExplicitConfig(t *testing.T) {
	dir := isolate(t)

	res := run(t, "check", "--json", "--config", filepath.Join(dir, "nope.yaml"))

	assert.Equal(t, output.ExitUsage, res.code)
	assert.Contains(t, res.stdout, "nope.yaml")
}

func TestUnknownFlag(t *testing.T) {
	isolate(t)

	res := run(t, "check", "--json", "--bogus")

	require.Equal(t, output.ExitUsage, res.code)
	assert.Equal(t, "Unknown option: --bogus", decode(t, res.stdout)["error"])
}

func TestJQFilter(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "100", reset: "30"})

	res := run(t, "check", "--jq", ".data.health", "--status-url", srv.URL)

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	assert.Equal(t, "healthy", strings.TrimSpace(res.stdout))
}

func TestStatsInMeta(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "100", reset: "30"})

	res := run(t, "check", "--json", "--stats", "--status-url", srv.URL)

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	meta := decode(t, res.stdout)["meta"].(map[string]any)
	stats := meta["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["requests"])
	assert.Equal(t, float64(1), stats["probes"])
}

func TestVerboseTrace(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "100", reset: "30"})

	res := run(t, "check", "--json", "-vv", "--status-url", srv.URL)

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	assert.Contains(t, res.stderr, "-> GET")
	assert.Contains(t, res.stderr, "<- 200")
	assert.Contains(t, res.stderr, "ESI healthy")
}

func TestWatchCount(t *testing.T) {
	isolate(t)
	srv := esiServer(t, esiResponse{remain: "100", reset: "30"})

	res := run(t, "watch", "--json", "--count", "1", "--status-url", srv.URL)

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	assert.Equal(t, "healthy", decode(t, res.stdout)["data"].(map[string]any)["health"])
}

func TestDoctorSkipNetwork(t *testing.T) {
	isolate(t)

	res := run(t, "doctor", "--json", "--skip-network")

	require.Equal(t, output.ExitOK, res.code, res.stdout)
	data := decode(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, float64(0), data["failed"])

	statuses := make(map[string]string)
	for _, c := range data["checks"].([]any) {
		check := c.(map[string]any)
		statuses[check["name"].(string)] = check["status"].(string)
	}
	assert.Equal(t, "skip", statuses["ESI Connectivity"])
	assert.Equal(t, "skip", statuses["Error Budget"])
	assert.Equal(t, "pass", statuses["State Directory"])
}

func TestVersion(t *testing.T) {
	isolate(t)

	res := run(t, "version")
	require.Equal(t, output.ExitOK, res.code)
	assert.Equal(t, version.Full(), strings.TrimSpace(res.stdout))

	res = run(t, "--version")
	require.Equal(t, output.ExitOK, res.code)
	assert.Equal(t, version.Full(), strings.TrimSpace(res.stdout))

	res = run(t, "version", "--json")
	data := decode(t, res.stdout)["data"].(map[string]any)
	assert.Equal(t, version.UserAgent(), data["user_agent"])
}

func TestVersionIgnoresBrokenConfig(t *testing.T) {
	dir := isolate(t)

	res := run(t, "version", "--config", filepath.Join(dir, "missing.yaml"))

	assert.Equal(t, output.ExitOK, res.code)
}

func TestTransformCobraError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"flag needs an argument: --status-url", "--status-url requires a value"},
		{"unknown flag: --nope", "Unknown option: --nope"},
		{"unknown shorthand flag: 'z' in -z", "Unknown option: -z"},
		{`unknown command "foo" for "esigate"`, `unknown command "foo" for "esigate"`},
		{`invalid argument "x" for "--count" flag`, `invalid argument "x" for "--count" flag`},
		{`unknown command "check" for "esigate downtime"`, `unknown command "check" for "esigate downtime"`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := transformCobraError(errors.New(tt.in))
			e := output.AsError(err)
			assert.Equal(t, output.CodeUsage, e.Code)
			assert.Equal(t, tt.want, e.Message)
		})
	}

	// Structured errors pass through untouched.
	offline := output.ErrOffline(false)
	assert.Same(t, offline, transformCobraError(offline))

	// Unrecognized plain errors pass through too.
	plain := errors.New("boom")
	assert.Equal(t, plain, transformCobraError(plain))
}
