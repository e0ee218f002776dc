package esi

import (
	"context"
	"time"
)

// RequestInfo describes a single HTTP attempt against the status endpoint.
type RequestInfo struct {
	Method  string
	URL     string
	Attempt int
}

// RequestResult describes how an attempt ended. StatusCode is zero when the
// request failed at the network level.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks observes probe attempts. Implementations must be safe for
// concurrent use.
type Hooks interface {
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRetry(ctx context.Context, info RequestInfo, attempt int, statusCode int)
}

// NopHooks ignores all events.
type NopHooks struct{}

var _ Hooks = NopHooks{}

func (NopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }
func (NopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult)          {}
func (NopHooks) OnRetry(context.Context, RequestInfo, int, int)                    {}
