package esi

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand returns the same values on every call.
type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }

func (r fixedRand) IntN(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

func newTestEvaluator(threshold int) *Evaluator {
	return NewEvaluator(EvaluatorConfig{ErrorLimitThreshold: threshold, MaxJitter: 20}, rand.New(rand.NewPCG(1, 2)))
}

func TestEvaluatorIsOK(t *testing.T) {
	e := newTestEvaluator(25)

	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"online and under threshold", OnlineStatus(30, 20), true},
		{"offline and under threshold", NewStatus(false, intPtr(30), intPtr(20)), false},
		{"online and limit exceeded", OnlineStatus(20, 20), false},
		{"offline and limit exceeded", NewStatus(false, intPtr(20), intPtr(20)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.IsOK(tt.status))
		})
	}
}

func TestEvaluatorIsErrorLimitExceeded(t *testing.T) {
	e := newTestEvaluator(25)

	assert.False(t, e.IsErrorLimitExceeded(OnlineStatus(30, 20)))
	assert.True(t, e.IsErrorLimitExceeded(OnlineStatus(10, 20)))
	assert.True(t, e.IsErrorLimitExceeded(OnlineStatus(25, 20)), "threshold is inclusive")
	assert.True(t, e.IsErrorLimitExceeded(OnlineStatus(0, 20)))
	assert.False(t, e.IsErrorLimitExceeded(NewStatus(true, intPtr(10), nil)))
	assert.False(t, e.IsErrorLimitExceeded(OfflineStatus()))
}

func TestEvaluatorRetryDelayRange(t *testing.T) {
	e := newTestEvaluator(25)
	s := OnlineStatus(30, 20)

	for i := 0; i < 1000; i++ {
		d := e.RetryDelay(s)
		assert.GreaterOrEqual(t, d, 21*time.Second)
		assert.Less(t, d, 40*time.Second)
		assert.Zero(t, d%time.Second, "delay must be whole seconds")
	}
}

func TestEvaluatorRetryDelayWithJitter(t *testing.T) {
	e := newTestEvaluator(25)
	s := OnlineStatus(30, 20)

	for i := 0; i < 1000; i++ {
		d := e.RetryDelayWithJitter(s, 10)
		assert.GreaterOrEqual(t, d, 21*time.Second)
		assert.Less(t, d, 30*time.Second)
	}

	// Non-positive caps fall back to the default.
	hi := NewEvaluator(EvaluatorConfig{MaxJitter: 20}, fixedRand{n: 100})
	assert.Equal(t, 39*time.Second, hi.RetryDelayWithJitter(s, 0))
	assert.Equal(t, 39*time.Second, hi.RetryDelayWithJitter(s, -5))
	assert.Equal(t, 21*time.Second, hi.RetryDelayWithJitter(s, 1))
}

func TestEvaluatorRetryDelayUnknownReset(t *testing.T) {
	e := newTestEvaluator(25)
	assert.Equal(t, time.Duration(0), e.RetryDelay(OfflineStatus()))
	assert.Equal(t, time.Duration(0), e.RetryDelay(NewStatus(true, intPtr(1), nil)))
}

func TestNewEvaluatorDefaultsJitter(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{ErrorLimitThreshold: 5}, nil)
	assert.Equal(t, DefaultMaxJitter, e.Config().MaxJitter)
	assert.Equal(t, 5, e.Config().ErrorLimitThreshold)
}

func TestEvaluatorAssess(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{ErrorLimitThreshold: 25, MaxJitter: 20}, fixedRand{n: 4})

	t.Run("healthy", func(t *testing.T) {
		v := e.Assess(OnlineStatus(99, 20))
		assert.True(t, v.OK())
		assert.Equal(t, Healthy, v.Health)
		assert.NoError(t, v.Err())
	})

	t.Run("offline wins over exceeded limit", func(t *testing.T) {
		v := e.Assess(NewStatus(false, intPtr(1), intPtr(20)))
		assert.Equal(t, Offline, v.Health)
		assert.Zero(t, v.RetryIn)
		assert.ErrorIs(t, v.Err(), ErrOffline)
	})

	t.Run("error limit exceeded", func(t *testing.T) {
		v := e.Assess(OnlineStatus(15, 20))
		assert.Equal(t, ErrorLimitExceeded, v.Health)
		assert.Equal(t, 25*time.Second, v.RetryIn)
	})
}

func TestEvaluatorAssertHealthy(t *testing.T) {
	e := NewEvaluator(EvaluatorConfig{ErrorLimitThreshold: 25}, fixedRand{n: 0})

	assert.NoError(t, e.AssertHealthy(OnlineStatus(99, 20)))
	assert.NoError(t, e.AssertHealthy(NewStatus(true, nil, nil)))

	err := e.AssertHealthy(NewStatus(false, intPtr(99), intPtr(20)))
	assert.ErrorIs(t, err, ErrOffline)

	err = e.AssertHealthy(OnlineStatus(15, 20))
	var limitErr *ErrorLimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 21*time.Second, limitErr.RetryIn)
	assert.Contains(t, err.Error(), "ESI error limit has been exceeded")
}

func TestHealthString(t *testing.T) {
	assert.Equal(t, "healthy", Healthy.String())
	assert.Equal(t, "offline", Offline.String())
	assert.Equal(t, "error_limit_exceeded", ErrorLimitExceeded.String())
	assert.Equal(t, "health(9)", Health(9).String())
}

func TestJitter(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 1000; i++ {
		v := Jitter(r, 1, 10)
		assert.GreaterOrEqual(t, v, 1)
		assert.Less(t, v, 10)
	}
	assert.Equal(t, 1, Jitter(r, 1, 1))
	assert.Equal(t, 1, Jitter(r, 1, 2))
}
