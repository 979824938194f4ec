// Package cache provides a small generic TTL cache with get-or-load semantics.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Loader computes the value for a key on a cache miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// TTL caches values for a fixed time and collapses concurrent loads of the
// same key into one call.
type TTL[K comparable, V any] struct {
	lru   *expirable.LRU[K, V]
	group singleflight.Group
	key   func(K) string
}

// New creates a cache holding at most size entries for ttl each. keyString
// renders keys for load deduplication.
func New[K comparable, V any](size int, ttl time.Duration, keyString func(K) string) *TTL[K, V] {
	return &TTL[K, V]{
		lru: expirable.NewLRU[K, V](size, nil, ttl),
		key: keyString,
	}
}

// Get returns a cached value if present and unexpired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// GetOrLoad returns the cached value or calls load and stores its result.
// Errors are not cached.
func (c *TTL[K, V]) GetOrLoad(ctx context.Context, key K, load Loader[K, V]) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(c.key(key), func() (any, error) {
		v, err := load(ctx, key)
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Set replaces the value for key.
func (c *TTL[K, V]) Set(key K, v V) {
	c.lru.Add(key, v)
}

// Invalidate drops key.
func (c *TTL[K, V]) Invalidate(key K) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	c.lru.Purge()
}
