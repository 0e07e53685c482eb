// Package resilience provides the retry and circuit-breaking primitives used
// by every generator and judge client call, backed by
// github.com/cenkalti/backoff/v4 (retry with exponential backoff) and
// github.com/sony/gobreaker/v2 (circuit breaking) rather than a hand-rolled
// implementation of either.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/sirupsen/logrus"
)

// State mirrors gobreaker's three-state model.
type State int

const (
	StateClosed   State = State(gobreaker.StateClosed)
	StateHalfOpen State = State(gobreaker.StateHalfOpen)
	StateOpen     State = State(gobreaker.StateOpen)
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitConfig configures a per-(provider,model) circuit breaker.
type CircuitConfig struct {
	MaxFailures   int           // consecutive failures before opening
	Timeout       time.Duration // time in open state before half-open
	HalfOpenMax   int           // max requests allowed in half-open
	OnStateChange func(from, to State)
}

// DefaultCircuitConfig returns the breaker setting used for upstream
// generator/judge HTTP calls: five consecutive failures trips it, thirty
// seconds in open before a half-open probe.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMax: 3}
}

// CircuitConfigWithLogging attaches a structured state-change log to cfg.
func CircuitConfigWithLogging(cfg CircuitConfig, log *logrus.Entry) CircuitConfig {
	cfg.OnStateChange = func(from, to State) {
		log.WithFields(logrus.Fields{"from_state": from.String(), "to_state": to.String()}).
			Warn("circuit breaker state changed")
	}
	return cfg
}

// CircuitBreaker wraps gobreaker.CircuitBreaker behind a ctx-accepting
// Execute signature, so it composes with retry and the rate limiter without
// a type-specific adapter at every call site.
type CircuitBreaker struct {
	gb *gobreaker.CircuitBreaker[any]
}

// NewCircuitBreaker builds a CircuitBreaker from cfg, applying defaults for
// zero fields.
func NewCircuitBreaker(cfg CircuitConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}

	maxFailures := uint32(cfg.MaxFailures)
	settings := gobreaker.Settings{
		MaxRequests: uint32(cfg.HalfOpenMax),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			cfg.OnStateChange(State(from), State(to))
		}
	}

	return &CircuitBreaker{gb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	return State(cb.gb.State())
}

// Execute runs fn with circuit-breaker protection. ctx is accepted for
// symmetry with Retry; callers enforce call timeouts on fn itself.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	_, err := cb.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		return mapGobreakerError(err)
	}
	return nil
}

func mapGobreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrCircuitOpen
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrTooManyRequests
	}
	return err
}

// BreakerRegistry lazily creates and caches one CircuitBreaker per
// (provider, model) key, mirroring ratelimit.Manager's per-key bucket table
// so a trip against one upstream model doesn't affect another sharing the
// same generator/judge client.
type BreakerRegistry struct {
	cfg CircuitConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry builds a registry that creates every breaker from cfg.
func NewBreakerRegistry(cfg CircuitConfig) *BreakerRegistry {
	return &BreakerRegistry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for (provider, model), creating it on first use.
func (r *BreakerRegistry) Get(provider, model string) *CircuitBreaker {
	key := provider + "/" + model
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(r.cfg)
		r.breakers[key] = cb
	}
	return cb
}

// RetryConfig configures exponential backoff retry.
type RetryConfig struct {
	MaxAttempts  int // total attempts, including the first
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0..1, randomization factor; 1.0 is full jitter
}

// TaskRetryConfig is the scheduler's policy for transient task errors (spec
// §4.8): "exponential backoff (base 500 ms, max 6 s, full jitter, ≤2
// attempts)" — two retries on top of the initial attempt.
func TaskRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     6 * time.Second,
		Multiplier:   2.0,
		Jitter:       1.0,
	}
}

// Retry executes fn with exponential backoff via cenkalti/backoff, stopping
// early if ctx is cancelled. The final error returned by fn is propagated
// unwrapped so callers can still classify it with apperr.Transient.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0 // bounded by MaxRetries, not wall-clock

	withMax := backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))
	withCtx := backoff.WithContext(withMax, ctx)

	return backoff.Retry(func() error { return fn() }, withCtx)
}

// RetryIf runs Retry but stops immediately (no further attempts) once
// shouldRetry returns false for the most recent error — used by the
// scheduler to retry only transient errors (spec §4.8: "Non-transient
// errors fail the task immediately").
func RetryIf(ctx context.Context, cfg RetryConfig, shouldRetry func(error) bool, fn func() error) error {
	wrapped := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := Retry(ctx, cfg, wrapped)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}
