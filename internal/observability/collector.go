// Package observability provides metrics collection and tracing for status probes.
package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/evetools/esigate/internal/esi"
)

// RequestMetrics holds timing and status information for a single HTTP request.
type RequestMetrics struct {
	Method     string
	URL        string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Error      error
}

// RetryMetrics records a retry event.
type RetryMetrics struct {
	URL        string
	Attempt    int
	StatusCode int
}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime      time.Time
	EndTime        time.Time
	TotalRequests  int
	FailedRequests int
	TotalRetries   int
	TotalLatency   time.Duration
	Probes         int
	OfflineProbes  int
	LimitedProbes  int
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime      time.Time
	totalRequests  int
	failedRequests int
	totalRetries   int
	totalLatency   time.Duration
	probes         int
	offlineProbes  int
	limitedProbes  int
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime: time.Now(),
	}
}

// RecordRequest records metrics for an HTTP request. Network failures and
// 5xx responses count as failed.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.Error != nil || m.StatusCode >= 500 {
		c.failedRequests++
	}
}

// RecordRetry records a retry event.
func (c *SessionCollector) RecordRetry(_ RetryMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// RecordVerdict records the outcome of one assessed probe.
func (c *SessionCollector) RecordVerdict(v esi.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes++
	switch v.Health {
	case esi.Offline:
		c.offlineProbes++
	case esi.ErrorLimitExceeded:
		c.limitedProbes++
	}
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:      c.startTime,
		EndTime:        time.Now(),
		TotalRequests:  c.totalRequests,
		FailedRequests: c.failedRequests,
		TotalRetries:   c.totalRetries,
		TotalLatency:   c.totalLatency,
		Probes:         c.probes,
		OfflineProbes:  c.offlineProbes,
		LimitedProbes:  c.limitedProbes,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.totalRetries = 0
	c.totalLatency = 0
	c.probes = 0
	c.offlineProbes = 0
	c.limitedProbes = 0
}

// ToMap renders the metrics for the JSON envelope's meta.stats.
func (m SessionMetrics) ToMap() map[string]any {
	return map[string]any{
		"requests":   m.TotalRequests,
		"failed":     m.FailedRequests,
		"retries":    m.TotalRetries,
		"latency_ms": m.TotalLatency.Milliseconds(),
		"probes":     m.Probes,
		"offline":    m.OfflineProbes,
		"limited":    m.LimitedProbes,
		"session_ms": m.EndTime.Sub(m.StartTime).Milliseconds(),
	}
}

// SessionMetricsFromMap is the inverse of ToMap. Numbers may be ints or
// float64 (after a JSON round trip); missing keys are zero.
func SessionMetricsFromMap(stats map[string]any) SessionMetrics {
	num := func(key string) int64 {
		switch v := stats[key].(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		default:
			return 0
		}
	}

	return SessionMetrics{
		TotalRequests:  int(num("requests")),
		FailedRequests: int(num("failed")),
		TotalRetries:   int(num("retries")),
		TotalLatency:   time.Duration(num("latency_ms")) * time.Millisecond,
		Probes:         int(num("probes")),
		OfflineProbes:  int(num("offline")),
		LimitedProbes:  int(num("limited")),
	}
}

// FormatParts returns the non-empty stats as short labels for a one-line
// summary, e.g. "4 requests", "3 retries", "1.2s".
func (m SessionMetrics) FormatParts() []string {
	var parts []string
	if m.TotalRequests > 0 {
		parts = append(parts, plural(m.TotalRequests, "request"))
	}
	if m.TotalRetries > 0 {
		parts = append(parts, plural(m.TotalRetries, "retry", "retries"))
	}
	if m.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", m.FailedRequests))
	}
	if m.OfflineProbes > 0 {
		parts = append(parts, fmt.Sprintf("%d offline", m.OfflineProbes))
	}
	if m.LimitedProbes > 0 {
		parts = append(parts, fmt.Sprintf("%d limited", m.LimitedProbes))
	}
	if m.TotalLatency > 0 {
		parts = append(parts, formatLatency(m.TotalLatency))
	}
	return parts
}

func plural(n int, singular string, pluralForm ...string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	if len(pluralForm) > 0 {
		return fmt.Sprintf("%d %s", n, pluralForm[0])
	}
	return fmt.Sprintf("%d %ss", n, singular)
}

func formatLatency(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
