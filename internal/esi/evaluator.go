package esi

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultErrorLimitThreshold is the remaining error budget at or below
	// which the error limit counts as exceeded.
	DefaultErrorLimitThreshold = 25

	// DefaultMaxJitter is the exclusive upper bound of the jitter, in
	// seconds, added to error limit retry delays.
	DefaultMaxJitter = 20
)

// ErrOffline is returned by AssertHealthy when ESI is offline.
var ErrOffline = errors.New("ESI appears to be offline")

// ErrorLimitExceededError is returned by AssertHealthy when ESI is online but
// the remaining error budget is at or below the threshold.
type ErrorLimitExceededError struct {
	// RetryIn is the time until the next error window, including jitter.
	RetryIn time.Duration
}

func (e *ErrorLimitExceededError) Error() string {
	return fmt.Sprintf("the ESI error limit has been exceeded (retry in %ds)", int(e.RetryIn.Seconds()))
}

// Health classifies a Status.
type Health int

const (
	Healthy Health = iota
	Offline
	ErrorLimitExceeded
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Offline:
		return "offline"
	case ErrorLimitExceeded:
		return "error_limit_exceeded"
	default:
		return fmt.Sprintf("health(%d)", int(h))
	}
}

// Verdict is the outcome of assessing a Status.
// RetryIn is only set when Health is ErrorLimitExceeded.
type Verdict struct {
	Health  Health
	RetryIn time.Duration
}

// OK reports whether the verdict is Healthy.
func (v Verdict) OK() bool {
	return v.Health == Healthy
}

// Err converts the verdict into ErrOffline, an *ErrorLimitExceededError,
// or nil.
func (v Verdict) Err() error {
	switch v.Health {
	case Offline:
		return ErrOffline
	case ErrorLimitExceeded:
		return &ErrorLimitExceededError{RetryIn: v.RetryIn}
	default:
		return nil
	}
}

// EvaluatorConfig holds the evaluation thresholds.
type EvaluatorConfig struct {
	// ErrorLimitThreshold: remain <= threshold means exceeded.
	ErrorLimitThreshold int

	// MaxJitter is the exclusive upper bound of retry jitter in seconds.
	// Values below 1 fall back to DefaultMaxJitter.
	MaxJitter int
}

// DefaultEvaluatorConfig returns the default thresholds.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		ErrorLimitThreshold: DefaultErrorLimitThreshold,
		MaxJitter:           DefaultMaxJitter,
	}
}

// Evaluator decides whether a Status is healthy. It is safe for concurrent
// use if its Rand is.
type Evaluator struct {
	cfg  EvaluatorConfig
	rand Rand
}

// NewEvaluator creates an Evaluator. A nil r uses DefaultRand.
func NewEvaluator(cfg EvaluatorConfig, r Rand) *Evaluator {
	if cfg.MaxJitter < 1 {
		cfg.MaxJitter = DefaultMaxJitter
	}
	if r == nil {
		r = DefaultRand()
	}
	return &Evaluator{cfg: cfg, rand: r}
}

// Config returns the effective configuration.
func (e *Evaluator) Config() EvaluatorConfig {
	return e.cfg
}

// IsErrorLimitExceeded reports whether both limits are known and the
// remaining budget is at or below the threshold.
func (e *Evaluator) IsErrorLimitExceeded(s Status) bool {
	remain, ok := s.ErrorLimitRemain()
	return ok && remain <= e.cfg.ErrorLimitThreshold
}

// IsOK reports whether ESI is online and below the error limit.
func (e *Evaluator) IsOK(s Status) bool {
	return s.IsOnline() && !e.IsErrorLimitExceeded(s)
}

// RetryDelay returns the time until the next error window plus jitter, or
// zero when the reset is unknown.
func (e *Evaluator) RetryDelay(s Status) time.Duration {
	return e.RetryDelayWithJitter(s, e.cfg.MaxJitter)
}

// RetryDelayWithJitter is RetryDelay with a per-call jitter bound.
// maxJitter below 1 falls back to DefaultMaxJitter.
func (e *Evaluator) RetryDelayWithJitter(s Status, maxJitter int) time.Duration {
	reset, ok := s.ErrorLimitReset()
	if !ok {
		return 0
	}
	if maxJitter < 1 {
		maxJitter = DefaultMaxJitter
	}
	seconds := reset + Jitter(e.rand, 1, maxJitter)
	return time.Duration(seconds) * time.Second
}

// Assess classifies s. Offline takes precedence over an exceeded error limit.
func (e *Evaluator) Assess(s Status) Verdict {
	if !s.IsOnline() {
		return Verdict{Health: Offline}
	}
	if e.IsErrorLimitExceeded(s) {
		return Verdict{Health: ErrorLimitExceeded, RetryIn: e.RetryDelay(s)}
	}
	return Verdict{Health: Healthy}
}

// AssertHealthy returns nil, ErrOffline, or an *ErrorLimitExceededError.
func (e *Evaluator) AssertHealthy(s Status) error {
	return e.Assess(s).Err()
}
