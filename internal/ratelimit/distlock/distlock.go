// Package distlock is an optional Redis-backed mutex for the rare
// deployment that runs more than one coordinator process against the same
// tenant traffic and needs those processes to agree on one rate-limit view.
// The single-process in-memory Manager (internal/ratelimit) remains the
// default; this package only guards the brief section where one process
// refills or mutates a shared bucket snapshot kept in Redis, it does not
// replace internal/ratelimit's own per-key mutex.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotLocked is returned by Unlock when the caller's token no longer
// matches the lock (it expired and another holder acquired it).
var ErrNotLocked = errors.New("distlock: lock not held by this token")

// unlockScript only deletes the key if it still holds our token, so a
// holder whose lease expired can never release a newer holder's lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker acquires short-lived named locks in Redis.
type Locker struct {
	rdb *redis.Client
}

func New(addr string) *Locker {
	return &Locker{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewFromClient wraps an already-configured *redis.Client, e.g. one sharing
// a connection pool with other subsystems.
func NewFromClient(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Lock is a held distributed lock; call Unlock to release it before ttl
// expires.
type Lock struct {
	key   string
	token string
	rdb   *redis.Client
}

// Acquire blocks (polling every 50ms) until it holds "distlock:"+name for up
// to ttl, or ctx is cancelled.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := "distlock:" + name
	token := uuid.NewString()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("distlock: acquire %s: %w", name, err)
		}
		if ok {
			return &Lock{key: key, token: token, rdb: l.rdb}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock if it is still held by this token.
func (lk *Lock) Unlock(ctx context.Context) error {
	res, err := unlockScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token).Int()
	if err != nil {
		return fmt.Errorf("distlock: unlock %s: %w", lk.key, err)
	}
	if res == 0 {
		return ErrNotLocked
	}
	return nil
}

// Ping verifies Redis connectivity, so a caller can surface a misconfigured
// Redis address before the first Acquire blocks on it.
func (l *Locker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (l *Locker) Close() error {
	return l.rdb.Close()
}
