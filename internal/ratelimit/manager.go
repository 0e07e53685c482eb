package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/genbatch/pipeline/internal/apperr"
)

// Config seeds default bucket capacity and the per-(provider, model)
// concurrency ceiling (spec §4.1, ambient defaults from internal/config.RateLimitConfig).
type Config struct {
	DefaultRPM        int
	DefaultTPM        int
	ConcurrencyPerKey int64 // per-(provider,model) semaphore weight
	PollInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConcurrencyPerKey <= 0 {
		c.ConcurrencyPerKey = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

type key struct {
	provider string
	model    string
}

// fifoQueue hands out turns in arrival order so that cancelling a waiter
// never reorders the buckets state (spec §4.1: "Fairness. FIFO per
// (provider, model) queue. Cancellation of a waiting caller must not advance
// the bucket state.").
type fifoQueue struct {
	mu      sync.Mutex
	tickets []chan struct{}
}

func (q *fifoQueue) join() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := make(chan struct{}, 1)
	if len(q.tickets) == 0 {
		t <- struct{}{}
	}
	q.tickets = append(q.tickets, t)
	return t
}

// advance removes the caller's own ticket and wakes the new head.
func (q *fifoQueue) advance(mine chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.tickets {
		if t == mine {
			q.tickets = append(q.tickets[:i], q.tickets[i+1:]...)
			break
		}
	}
	if len(q.tickets) > 0 {
		select {
		case q.tickets[0] <- struct{}{}:
		default:
		}
	}
}

// Manager owns the process-wide bucket table and per-key concurrency
// semaphores — the only global mutable state besides the worker-pool handle
// (spec §5).
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sems     map[key]*semaphore.Weighted
	bkts     map[key]*bucket
	queue    map[key]*fifoQueue
	lastUsed map[key]time.Time
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		sems:     make(map[key]*semaphore.Weighted),
		bkts:     make(map[key]*bucket),
		queue:    make(map[key]*fifoQueue),
		lastUsed: make(map[key]time.Time),
	}
}

func (m *Manager) entriesFor(k key) (*semaphore.Weighted, *bucket, *fifoQueue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.sems[k]
	if !ok {
		sem = semaphore.NewWeighted(m.cfg.ConcurrencyPerKey)
		m.sems[k] = sem
	}
	b, ok := m.bkts[k]
	if !ok {
		b = newBucket(m.cfg.DefaultRPM, m.cfg.DefaultTPM)
		m.bkts[k] = b
	}
	q, ok := m.queue[k]
	if !ok {
		q = &fifoQueue{}
		m.queue[k] = q
	}
	m.lastUsed[k] = time.Now()
	return sem, b, q
}

// GCIdle drops every (provider, model) bucket untouched since before
// maxIdle, returning "provider/model" for each one dropped so the caller can
// log it. A fresh bucket is recreated with default capacity on next use.
func (m *Manager) GCIdle(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []string
	for k, seenAt := range m.lastUsed {
		if seenAt.After(cutoff) {
			continue
		}
		delete(m.lastUsed, k)
		delete(m.sems, k)
		delete(m.bkts, k)
		delete(m.queue, k)
		reaped = append(reaped, k.provider+"/"+k.model)
	}
	return reaped
}

// Permit is returned by Acquire and must be passed to Release exactly once.
type Permit struct {
	Provider        string
	Model           string
	EstimatedTokens int
	acquiredAt      time.Time
	sem             *semaphore.Weighted
	bkt             *bucket
}

// Acquire blocks until a request is allowed to go out: a per-(provider,
// model) concurrency slot, then rpm/tpm capacity (spec §4.1). The concurrency
// semaphore is always acquired before the token bucket — inner-first is
// forbidden (spec §4.1: "would deadlock with strict limits").
func (m *Manager) Acquire(ctx context.Context, provider, model string, estimatedTokens int, timeout time.Duration) (*Permit, error) {
	k := key{provider: provider, model: model}
	sem, b, q := m.entriesFor(k)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.RateLimitTimeout(provider, model)
	}

	ticket := q.join()
	defer q.advance(ticket)

	for {
		select {
		case <-ticket:
		case <-ctx.Done():
			sem.Release(1)
			return nil, apperr.RateLimitTimeout(provider, model)
		}

		b.mu.Lock()
		ok, wait := b.tryAcquireLocked(time.Now(), estimatedTokens)
		b.mu.Unlock()
		if ok {
			return &Permit{Provider: provider, Model: model, EstimatedTokens: estimatedTokens, acquiredAt: time.Now(), sem: sem, bkt: b}, nil
		}

		if wait > m.cfg.PollInterval || wait <= 0 {
			wait = m.cfg.PollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			sem.Release(1)
			return nil, apperr.RateLimitTimeout(provider, model)
		case <-timer.C:
		}
		ticket <- struct{}{} // requeue our own turn for the next poll
	}
}

// Release returns the permit's concurrency slot and, if headers parse,
// overwrites the bucket from authoritative response headers and refunds any
// over-estimated tokens (spec §4.1).
func (m *Manager) Release(permit *Permit, actualTokens int, headers HeaderSnapshotSource) {
	defer permit.sem.Release(1)

	permit.bkt.mu.Lock()
	defer permit.bkt.mu.Unlock()

	if headers != nil {
		if snap, ok := headers.Headers(); ok {
			permit.bkt.applyHeadersLocked(snap)
			return
		}
	}
	if actualTokens > 0 {
		permit.bkt.refundLocked(permit.EstimatedTokens, actualTokens)
	}
}

// HeaderSnapshotSource abstracts "does this response carry rate-limit
// headers, and if so what did they say" so Release doesn't need an
// *http.Response directly (keeps this package transport-agnostic).
type HeaderSnapshotSource interface {
	Headers() (HeaderSnapshot, bool)
}

// Status returns a point-in-time Snapshot for (provider, model), creating
// the bucket with defaults if it doesn't exist yet.
func (m *Manager) Status(provider, model string) Snapshot {
	_, b, _ := m.entriesFor(key{provider: provider, model: model})
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked(provider, model)
}

// Snapshots returns a point-in-time view of every (provider, model) bucket
// currently tracked, for the rate-limit status endpoint (spec §6).
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	keys := make([]key, 0, len(m.bkts))
	for k := range m.bkts {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	snaps := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		snaps = append(snaps, m.Status(k.provider, k.model))
	}
	return snaps
}
