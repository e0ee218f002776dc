package observability

import (
	"context"
	"sync"

	"github.com/evetools/esigate/internal/esi"
)

// Verify CLIHooks implements esi.Hooks at compile time.
var _ esi.Hooks = (*CLIHooks)(nil)

// CLIHooks implements esi.Hooks for CLI observability.
// It supports configurable verbosity levels:
//   - 0: Silent (collect stats only, no output)
//   - 1: Retries only
//   - 2: Retries + requests
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates a new CLIHooks with the given verbosity level.
// If collector is nil, metrics are not collected.
// If writer is nil, no trace output is produced.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

// OnRequestStart is called before an HTTP request is sent.
func (h *CLIHooks) OnRequestStart(ctx context.Context, info esi.RequestInfo) context.Context {
	level, _, writer := h.snapshot()
	if level >= 2 && writer != nil {
		writer.WriteRequestStart(info)
	}
	return ctx
}

// OnRequestEnd is called after an HTTP request completes.
func (h *CLIHooks) OnRequestEnd(_ context.Context, info esi.RequestInfo, result esi.RequestResult) {
	level, collector, writer := h.snapshot()

	if collector != nil {
		collector.RecordRequest(RequestMetrics{
			Method:     info.Method,
			URL:        info.URL,
			Attempt:    info.Attempt,
			StatusCode: result.StatusCode,
			Duration:   result.Duration,
			Error:      result.Err,
		})
	}

	if level >= 2 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}

// OnRetry is called before a retry attempt.
func (h *CLIHooks) OnRetry(_ context.Context, info esi.RequestInfo, attempt int, statusCode int) {
	level, collector, writer := h.snapshot()

	if collector != nil {
		collector.RecordRetry(RetryMetrics{URL: info.URL, Attempt: attempt, StatusCode: statusCode})
	}

	if level >= 1 && writer != nil {
		writer.WriteRetry(attempt, statusCode)
	}
}

// OnVerdict records an assessed probe. It is not part of esi.Hooks; the
// commands call it after assessing a status.
func (h *CLIHooks) OnVerdict(s esi.Status, v esi.Verdict) {
	level, collector, writer := h.snapshot()

	if collector != nil {
		collector.RecordVerdict(v)
	}

	if level >= 1 && writer != nil {
		writer.WriteVerdict(s, v)
	}
}
