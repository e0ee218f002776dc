package taskretry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evetools/esigate/internal/esi"
)

type staticSource struct {
	status esi.Status
	calls  int
}

func (s *staticSource) Fetch(context.Context) esi.Status {
	s.calls++
	return s.status
}

// recordingTask records Retry calls.
type recordingTask struct {
	countdowns []time.Duration
	err        error
}

func (t *recordingTask) Retry(countdown time.Duration) error {
	t.countdowns = append(t.countdowns, countdown)
	return t.err
}

type fixedRand struct{ n int }

func (fixedRand) Float64() float64 { return 0 }

func (r fixedRand) IntN(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

func newAdapter(status esi.Status, logs *bytes.Buffer, r esi.Rand) (*Adapter, *staticSource) {
	src := &staticSource{status: status}
	eval := esi.NewEvaluator(esi.EvaluatorConfig{ErrorLimitThreshold: 25, MaxJitter: 20}, r)
	return NewAdapter(src, eval,
		WithLogger(slog.New(slog.NewTextHandler(logs, nil))),
		WithRand(r),
	), src
}

func TestRetryIfUnhealthyHealthy(t *testing.T) {
	var logs bytes.Buffer
	a, src := newAdapter(esi.OnlineStatus(99, 60), &logs, fixedRand{})
	task := &recordingTask{}

	require.NoError(t, a.RetryIfUnhealthy(context.Background(), task))
	assert.Empty(t, task.countdowns)
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, logs.String())
}

func TestRetryIfUnhealthyOffline(t *testing.T) {
	var logs bytes.Buffer
	a, _ := newAdapter(esi.OfflineStatus(), &logs, fixedRand{n: 3})
	task := &recordingTask{}

	require.NoError(t, a.RetryIfUnhealthy(context.Background(), task))
	require.Len(t, task.countdowns, 1)
	assert.Equal(t, 14*time.Minute, task.countdowns[0])
	assert.Contains(t, logs.String(), "Trying again in 14 minutes")
}

func TestRetryIfUnhealthyErrorLimit(t *testing.T) {
	var logs bytes.Buffer
	a, _ := newAdapter(esi.OnlineStatus(10, 30), &logs, fixedRand{n: 4})
	task := &recordingTask{}

	require.NoError(t, a.RetryIfUnhealthy(context.Background(), task))
	require.Len(t, task.countdowns, 1)
	assert.Equal(t, 35*time.Second, task.countdowns[0])
	assert.Contains(t, logs.String(), "Trying again in 35 seconds")
}

func TestRetryIfUnhealthyReturnsTaskError(t *testing.T) {
	var logs bytes.Buffer
	a, _ := newAdapter(esi.OfflineStatus(), &logs, fixedRand{})
	retryErr := errors.New("scheduled")

	err := a.RetryIfUnhealthy(context.Background(), &recordingTask{err: retryErr})
	assert.Same(t, retryErr, err)
}

func TestOfflineCountdownRange(t *testing.T) {
	var logs bytes.Buffer
	a, _ := newAdapter(esi.OfflineStatus(), &logs, rand.New(rand.NewPCG(7, 8)))

	for i := 0; i < 1000; i++ {
		c := a.OfflineCountdown()
		assert.GreaterOrEqual(t, c, 11*time.Minute)
		assert.LessOrEqual(t, c, 19*time.Minute)
		assert.Zero(t, c%time.Minute)
	}
}

func TestDirective(t *testing.T) {
	var logs bytes.Buffer
	a, _ := newAdapter(esi.OnlineStatus(0, 5), &logs, fixedRand{})

	err := a.RetryIfUnhealthy(context.Background(), Directive{Reason: "error limit"})
	require.Error(t, err)
	assert.True(t, IsRetry(err))

	re, ok := AsRetry(fmt.Errorf("task aborted: %w", err))
	require.True(t, ok)
	assert.Equal(t, 6*time.Second, re.Countdown)
	assert.Equal(t, "error limit", re.Reason)
	assert.Equal(t, "retry in 6s: error limit", re.Error())
}

func TestIsRetryOtherErrors(t *testing.T) {
	assert.False(t, IsRetry(nil))
	assert.False(t, IsRetry(esi.ErrOffline))
	_, ok := AsRetry(errors.New("boom"))
	assert.False(t, ok)
	assert.Equal(t, "retry in 1m0s", (&RetryError{Countdown: time.Minute}).Error())
}

func TestWithObserver(t *testing.T) {
	var logs bytes.Buffer
	var seen []esi.Verdict
	src := &staticSource{status: esi.OfflineStatus()}
	eval := esi.NewEvaluator(esi.DefaultEvaluatorConfig(), fixedRand{})
	a := NewAdapter(src, eval,
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithObserver(func(_ esi.Status, v esi.Verdict) { seen = append(seen, v) }),
	)

	_ = a.RetryIfUnhealthy(context.Background(), Directive{})

	require.Len(t, seen, 1)
	assert.Equal(t, esi.Offline, seen[0].Health)
}
