package observability

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/evetools/esigate/internal/esi"
)

// sensitiveParams are query parameter names scrubbed from trace output.
// Custom status URLs behind a proxy may carry credentials.
var sensitiveParams = map[string]bool{
	"access_token": true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"password":     true,
	"secret":       true,
}

// TraceWriter outputs human-readable trace information to stderr.
// It formats output with timestamps relative to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriterTo creates a new TraceWriter that writes to the given writer.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{
		writer:    w,
		startTime: time.Now(),
	}
}

func (t *TraceWriter) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	fmt.Fprintf(t.writer, "[%.3fs] "+format+"\n", append([]any{elapsed}, args...)...)
}

// WriteRequestStart writes a request start trace line.
// Format: [0.234s]   -> GET https://esi.evetech.net/latest/status/ (attempt 1)
func (t *TraceWriter) WriteRequestStart(info esi.RequestInfo) {
	t.printf("  -> %s %s (attempt %d)", info.Method, scrubURL(info.URL), info.Attempt)
}

// WriteRequestEnd writes a request completion trace line.
// Format: [0.234s]   <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(_ esi.RequestInfo, result esi.RequestResult) {
	if result.Err != nil {
		t.printf("  <- ERROR: %v", result.Err)
		return
	}
	t.printf("  <- %d (%dms)", result.StatusCode, result.Duration.Milliseconds())
}

// WriteRetry writes a retry trace line.
// Format: [0.234s]   RETRY 1/3 after 503
func (t *TraceWriter) WriteRetry(attempt, statusCode int) {
	t.printf("  RETRY %d/%d after %d", attempt, esi.MaxRetries, statusCode)
}

// WriteVerdict writes the assessed health of a probe.
// Format: [0.234s] ESI healthy: online=true error_limit_remain=100 error_limit_reset=30
func (t *TraceWriter) WriteVerdict(s esi.Status, v esi.Verdict) {
	if v.Health == esi.ErrorLimitExceeded {
		t.printf("ESI %s (retry in %s): %s", v.Health, v.RetryIn, s)
		return
	}
	t.printf("ESI %s: %s", v.Health, s)
}

// Reset resets the start time for relative timestamps.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
// Returns a safe placeholder if the URL cannot be parsed.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}
	if u.User != nil {
		u.User = url.User("[REDACTED]")
		modified = true
	}

	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
