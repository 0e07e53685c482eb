// Package ratelimit is the token-bucket + concurrency-semaphore limiter
// described in spec §4.1 — the only place in the engine where blocking on
// limits is acceptable (spec §5). One Bucket exists per (provider, model);
// Manager owns the bucket table plus the per-(provider, model) concurrency
// semaphore,
// both process-wide global mutable state per spec §5.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Snapshot is the read-only view returned by status() (spec §4.1).
type Snapshot struct {
	Provider      string
	Model         string
	RPMLimit      int
	RPMRemaining  int
	TPMLimit      int
	TPMRemaining  int
	WindowResetAt time.Time
}

// bucket is the per-(provider,model) state. All fields are guarded by mu;
// callers never touch them directly, only through acquire/release.
type bucket struct {
	mu sync.Mutex

	rpmLimit, rpmRemaining int
	tpmLimit, tpmRemaining int
	windowResetAt          time.Time

	// smoother is a rate.Limiter built at the bucket's rpm rate. Nothing
	// in this package consults it: admission is decided by the rpm/tpm
	// counters alone.
	smoother *rate.Limiter
}

func newBucket(defaultRPM, defaultTPM int) *bucket {
	now := time.Now()
	rpm := defaultRPM
	if rpm <= 0 {
		rpm = 60
	}
	tpm := defaultTPM
	if tpm <= 0 {
		tpm = 100000
	}
	return &bucket{
		rpmLimit:      rpm,
		rpmRemaining:  rpm,
		tpmLimit:      tpm,
		tpmRemaining:  tpm,
		windowResetAt: now.Add(time.Minute),
		smoother:      rate.NewLimiter(rate.Limit(rpm)/60.0, maxInt(1, rpm/4)),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// refillLocked applies the refill rule (spec §4.1): "On every acquire
// attempt, if now >= window_reset_at, reset both counters and roll the
// window forward." Caller must hold mu.
func (b *bucket) refillLocked(now time.Time) {
	if !now.Before(b.windowResetAt) {
		b.rpmRemaining = b.rpmLimit
		b.tpmRemaining = b.tpmLimit
		b.windowResetAt = now.Add(time.Minute)
	}
}

// tryAcquireLocked attempts to satisfy one request for estimatedTokens.
// Caller must hold mu. Returns ok=false and the wait duration to retry
// after if capacity is insufficient (spec §4.1 "Wait computation").
func (b *bucket) tryAcquireLocked(now time.Time, estimatedTokens int) (ok bool, wait time.Duration) {
	b.refillLocked(now)

	if b.rpmRemaining < 1 || b.tpmRemaining < estimatedTokens {
		wait = b.windowResetAt.Sub(now)
		if wait > time.Second {
			wait = time.Second
		}
		if wait < 0 {
			wait = 0
		}
		return false, wait
	}

	b.rpmRemaining--
	b.tpmRemaining -= estimatedTokens
	return true, 0
}

// applyHeadersLocked overwrites limit/remaining/reset-at from authoritative
// response headers (spec §4.1: "headers are authoritative"). Caller must
// hold mu.
func (b *bucket) applyHeadersLocked(h HeaderSnapshot) {
	if h.RPMLimit > 0 {
		b.rpmLimit = h.RPMLimit
	}
	if h.RPMRemaining >= 0 {
		b.rpmRemaining = h.RPMRemaining
	}
	if h.TPMLimit > 0 {
		b.tpmLimit = h.TPMLimit
	}
	if h.TPMRemaining >= 0 {
		b.tpmRemaining = h.TPMRemaining
	}
	if !h.ResetAt.IsZero() {
		b.windowResetAt = h.ResetAt
	}
}

// refundLocked returns unused estimated tokens to tpm_remaining (spec §4.1:
// "If actual_tokens < estimated_tokens, the difference is returned to
// tpm_remaining"). Caller must hold mu.
func (b *bucket) refundLocked(estimated, actual int) {
	if actual < estimated {
		diff := estimated - actual
		b.tpmRemaining += diff
		if b.tpmRemaining > b.tpmLimit {
			b.tpmRemaining = b.tpmLimit
		}
	}
}

func (b *bucket) snapshotLocked(provider, model string) Snapshot {
	return Snapshot{
		Provider:      provider,
		Model:         model,
		RPMLimit:      b.rpmLimit,
		RPMRemaining:  b.rpmRemaining,
		TPMLimit:      b.tpmLimit,
		TPMRemaining:  b.tpmRemaining,
		WindowResetAt: b.windowResetAt,
	}
}
