// Package cache holds read-mostly snapshots of store data.
package cache

import (
	"context"
	"sync"
	"time"
)

// TTLCache keeps values that are invalidated together. All entries share one
// timestamp: once the TTL passes, or Invalidate is called, every entry is
// stale. A zero TTL never expires, leaving invalidation to the writer.
type TTLCache[K comparable, V any] struct {
	mu        sync.RWMutex
	data      map[K]V
	timestamp time.Time
	ttl       time.Duration
	now       func() time.Time

	// generation guards against a Load that raced an Invalidate storing
	// data read before the write.
	generation uint64
}

// New creates an empty cache.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{data: make(map[K]V), ttl: ttl, now: time.Now}
}

// Get returns the cached value for key.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.expiredLocked() {
		var zero V
		return zero, false
	}
	v, ok := c.data[key]
	return v, ok
}

// Set stores value and restarts the TTL for the whole cache.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *TTLCache[K, V]) setLocked(key K, value V) {
	if c.expiredLocked() {
		c.data = make(map[K]V)
	}
	c.data[key] = value
	c.timestamp = c.now()
}

// Load returns the cached value for key, calling fn to fill it on a miss.
// A failed fn leaves the cache untouched. Concurrent misses may each call fn.
func (c *TTLCache[K, V]) Load(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.setLocked(key, v)
	}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops every entry.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[K]V)
	c.timestamp = time.Time{}
	c.generation++
}

// IsExpired reports whether the cache holds nothing usable.
func (c *TTLCache[K, V]) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiredLocked()
}

// Must be called with at least a read lock held.
func (c *TTLCache[K, V]) expiredLocked() bool {
	if c.timestamp.IsZero() {
		return true
	}
	return c.ttl > 0 && c.now().Sub(c.timestamp) >= c.ttl
}

// Len returns the number of entries, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
