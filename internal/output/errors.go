package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/evetools/esigate/internal/esi"
	"github.com/evetools/esigate/internal/taskretry"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code      string
	Message   string
	Hint      string
	Retryable bool
	// RetryIn is how long to wait before trying again, when known.
	RetryIn time.Duration
	// Data is attached to the error envelope, e.g. the status that
	// caused a failed check.
	Data  any
	Cause error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithData returns a copy of e carrying data.
func (e *Error) WithData(data any) *Error {
	c := *e
	c.Data = data
	return &c
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrConfig(cause error) *Error {
	return &Error{
		Code:    CodeUsage,
		Message: "Invalid configuration",
		Hint:    cause.Error(),
		Cause:   cause,
	}
}

func ErrOffline(downtime bool) *Error {
	hint := "ESI did not answer or reported itself unavailable"
	if downtime {
		hint = "ESI is in its daily downtime window"
	}
	return &Error{
		Code:      CodeOffline,
		Message:   "ESI appears to be offline",
		Hint:      hint,
		Retryable: true,
		Cause:     esi.ErrOffline,
	}
}

func ErrErrorLimit(retryIn time.Duration) *Error {
	return &Error{
		Code:      CodeErrorLimit,
		Message:   "ESI error limit threshold reached",
		Hint:      fmt.Sprintf("Try again in %d seconds", int(retryIn.Seconds())),
		Retryable: true,
		RetryIn:   retryIn,
		Cause:     &esi.ErrorLimitExceededError{RetryIn: retryIn},
	}
}

func ErrRetry(re *taskretry.RetryError) *Error {
	msg := "Task must be retried"
	if re.Reason != "" {
		msg = fmt.Sprintf("Task must be retried: %s", re.Reason)
	}
	return &Error{
		Code:      CodeRetry,
		Message:   msg,
		Hint:      fmt.Sprintf("Retry in %s", re.Countdown),
		Retryable: true,
		RetryIn:   re.Countdown,
		Cause:     re,
	}
}

// FromVerdict maps the errors produced by esi.Verdict.Err and
// taskretry.Directive onto structured errors. Other errors go through
// AsError; nil stays nil.
func FromVerdict(err error) *Error {
	if err == nil {
		return nil
	}
	if re, ok := taskretry.AsRetry(err); ok {
		return ErrRetry(re)
	}
	var limitErr *esi.ErrorLimitExceededError
	if errors.As(err, &limitErr) {
		return ErrErrorLimit(limitErr.RetryIn)
	}
	if errors.Is(err, esi.ErrOffline) {
		return ErrOffline(false)
	}
	return AsError(err)
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}
