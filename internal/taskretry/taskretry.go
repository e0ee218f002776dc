// Package taskretry reschedules background tasks while ESI is unhealthy.
//
// A task system integrates by implementing Task. RetryIfUnhealthy probes
// ESI and, when it is offline or the error budget is exhausted, asks the
// task to retry after a countdown instead of continuing.
package taskretry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evetools/esigate/internal/esi"
)

const (
	// offlineBaseMinutes is the minimum wait before retrying while ESI is
	// offline. A jitter of 1 to 9 minutes is added.
	offlineBaseMinutes = 10
	offlineMaxJitter   = 10
)

// Task is the host task being guarded.
type Task interface {
	// Retry schedules the task to run again after countdown. The returned
	// error is passed back to the caller of RetryIfUnhealthy unchanged.
	Retry(countdown time.Duration) error
}

// StatusSource yields the current ESI status. *esi.Fetcher satisfies it.
type StatusSource interface {
	Fetch(ctx context.Context) esi.Status
}

// Adapter connects a StatusSource and an Evaluator to a Task.
type Adapter struct {
	source    StatusSource
	evaluator *esi.Evaluator
	logger    *slog.Logger
	rand      esi.Rand
	observe   func(esi.Status, esi.Verdict)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithRand sets the random source for the offline countdown.
func WithRand(r esi.Rand) Option {
	return func(a *Adapter) { a.rand = r }
}

// WithObserver registers fn to receive every assessed status.
func WithObserver(fn func(esi.Status, esi.Verdict)) Option {
	return func(a *Adapter) { a.observe = fn }
}

// NewAdapter creates an Adapter.
func NewAdapter(source StatusSource, evaluator *esi.Evaluator, opts ...Option) *Adapter {
	a := &Adapter{
		source:    source,
		evaluator: evaluator,
		logger:    slog.Default(),
		rand:      esi.DefaultRand(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check fetches the status and assesses it without touching any task.
func (a *Adapter) Check(ctx context.Context) (esi.Status, esi.Verdict) {
	status := a.source.Fetch(ctx)
	verdict := a.evaluator.Assess(status)
	if a.observe != nil {
		a.observe(status, verdict)
	}
	return status, verdict
}

// RetryIfUnhealthy returns nil when ESI is healthy. Otherwise it calls
// task.Retry with a countdown and returns its result.
func (a *Adapter) RetryIfUnhealthy(ctx context.Context, task Task) error {
	_, verdict := a.Check(ctx)

	switch verdict.Health {
	case esi.Offline:
		countdown := a.OfflineCountdown()
		a.logger.Warn(fmt.Sprintf("ESI appears to be offline. Trying again in %d minutes.", int(countdown.Minutes())))
		return task.Retry(countdown)
	case esi.ErrorLimitExceeded:
		a.logger.Warn(fmt.Sprintf("ESI error limit threshold reached. Trying again in %d seconds", int(verdict.RetryIn.Seconds())))
		return task.Retry(verdict.RetryIn)
	default:
		return nil
	}
}

// OfflineCountdown returns a wait of 11 to 19 whole minutes.
func (a *Adapter) OfflineCountdown() time.Duration {
	minutes := offlineBaseMinutes + esi.Jitter(a.rand, 1, offlineMaxJitter)
	return time.Duration(minutes) * time.Minute
}

// RetryError is the retry signal raised by Directive. It aborts normal
// completion of the task.
type RetryError struct {
	Countdown time.Duration
	Reason    string
}

func (e *RetryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("retry in %s", e.Countdown)
	}
	return fmt.Sprintf("retry in %s: %s", e.Countdown, e.Reason)
}

// Directive is a Task for hosts that treat a returned error as the retry
// request, such as a CLI wrapper or a job runner.
type Directive struct {
	// Reason is copied into the RetryError.
	Reason string
}

// Retry returns a *RetryError carrying countdown.
func (d Directive) Retry(countdown time.Duration) error {
	return &RetryError{Countdown: countdown, Reason: d.Reason}
}

// AsRetry extracts the *RetryError from err.
func AsRetry(err error) (*RetryError, bool) {
	var re *RetryError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRetry reports whether err is a retry signal.
func IsRetry(err error) bool {
	_, ok := AsRetry(err)
	return ok
}
