package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryIfStopsOnNonTransient(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := RetryIf(context.Background(), cfg, func(error) bool { return false }, func() error {
		attempts++
		return errors.New("non-transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Retry(ctx, cfg, func() error {
		return errors.New("fails")
	})
	require.Error(t, err)
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	var transitions []State
	cfg := CircuitConfig{
		MaxFailures: 2,
		Timeout:     10 * time.Millisecond,
		HalfOpenMax: 1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, to)
		},
	}
	cb := NewCircuitBreaker(cfg)

	failing := func() error { return errors.New("boom") }
	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), failing)

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, transitions, StateOpen)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cfg := CircuitConfig{MaxFailures: 1, Timeout: 5 * time.Millisecond, HalfOpenMax: 1}
	cb := NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(10 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerRegistryKeysByProviderAndModel(t *testing.T) {
	r := NewBreakerRegistry(CircuitConfig{MaxFailures: 1, Timeout: time.Minute, HalfOpenMax: 1})

	a := r.Get("openai", "gpt-4")
	b := r.Get("openai", "gpt-4")
	c := r.Get("anthropic", "claude")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	_ = a.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, a.State())
	assert.Equal(t, StateClosed, c.State(), "a trip on one (provider, model) pair must not affect another")
}

func TestTaskRetryConfigMatchesSpecBounds(t *testing.T) {
	cfg := TaskRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 6*time.Second, cfg.MaxDelay)
	assert.Equal(t, 1.0, cfg.Jitter)
}
