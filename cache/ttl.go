// Package cache bounds how often slow-changing upstream data is fetched.
package cache

import (
	"context"
	"sync"
	"time"
)

// FetchFunc loads a fresh value for a TTLCache.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// TTLCache is a single-entry stale-while-revalidate cache. A value older than
// the TTL is refetched; when the refetch fails the previous value is kept and
// returned again, so a failure never regresses to "no data".
type TTLCache[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	value     T
	hasValue  bool
	fetchedAt time.Time
	lastErr   error
}

func NewTTLCache[T any](ttl time.Duration, now func() time.Time) *TTLCache[T] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[T]{ttl: ttl, now: now}
}

// Get returns the cached value when it is younger than the TTL, otherwise it
// calls fetch. fresh reports whether fetch succeeded during this call. On a
// failed fetch err is set and value is the stale entry (zero if none).
func (c *TTLCache[T]) Get(ctx context.Context, fetch FetchFunc[T]) (value T, fresh bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.hasValue && now.Sub(c.fetchedAt) <= c.ttl {
		return c.value, false, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		c.lastErr = err
		return c.value, false, err
	}

	c.value = v
	c.hasValue = true
	c.fetchedAt = now
	c.lastErr = nil
	return v, true, nil
}

// LastUpdate returns the time of the last successful fetch, or the zero time.
func (c *TTLCache[T]) LastUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}

// LastError returns the error of the most recent fetch, nil after a success.
func (c *TTLCache[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
