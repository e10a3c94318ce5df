// Package cache holds the service's read caches: an in-process TTL value
// and a Redis-backed event view cache.
package cache

import (
	"context"
	"sync"
	"time"
)

// TTL caches the result of load for ttl. It is owned by the service that
// creates it; writers call Invalidate after changing the underlying data.
type TTL[T any] struct {
	mu        sync.Mutex
	load      func(ctx context.Context) (T, error)
	ttl       time.Duration
	now       func() time.Time
	data      T
	fetchedAt time.Time
	valid     bool
}

// NewTTL constructs a TTL cache. now may be nil to use the wall clock.
func NewTTL[T any](ttl time.Duration, load func(ctx context.Context) (T, error), now func() time.Time) *TTL[T] {
	if now == nil {
		now = time.Now
	}
	return &TTL[T]{load: load, ttl: ttl, now: now}
}

// Get returns the cached value, reloading it when stale. Concurrent callers
// share one load. A failed load leaves the previous state in place.
func (c *TTL[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.data, nil
	}
	data, err := c.load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.data, c.fetchedAt, c.valid = data, c.now(), true
	return data, nil
}

// Invalidate forces the next Get to reload.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
