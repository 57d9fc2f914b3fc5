// Package querycache is a request-deduplicating, invalidate-and-refetch cache.
//
// Entries are keyed by string. Concurrent reads of a missing or stale key
// share one in-flight fetch. Every invalidation bumps the key's generation; a
// fetch that completes under an older generation is not stored as fresh.
package querycache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"catalog/taxonomy/internal/metrics"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// maxAttempts bounds how often a fetch is repeated when its key keeps being
// invalidated while the request is in flight.
const maxAttempts = 2

type entry struct {
	value     any
	hasValue  bool
	fresh     bool
	gen       uint64
	updatedAt time.Time
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		metrics: m,
	}
}

// Get returns the cached value for key when fresh, otherwise runs fetch
// (shared with concurrent callers of the same key) and caches its result.
// Errors are returned but never cached.
func Get[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.fresh && e.hasValue {
		c.mu.Unlock()
		c.metrics.CacheEvent(collection(key), metrics.CacheHit)
		v, ok := e.value.(T)
		if !ok {
			return zero, fmt.Errorf("cached value for %s has type %T", key, e.value)
		}
		return v, nil
	}
	c.mu.Unlock()
	c.metrics.CacheEvent(collection(key), metrics.CacheMiss)

	// The shared fetch must not be cancelled by whichever caller started it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(fetchCtx, key, func(ctx context.Context) (any, error) {
			return fetch(ctx)
		})
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("fetched value for %s has type %T", key, res.Val)
		}
		return v, nil
	}
}

func (c *Cache) fetch(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error) {
	var (
		value any
		err   error
	)

	// A caller that missed the cache just before the previous flight landed
	// starts a new flight; serve it the stored value.
	if v, ok := c.freshValue(key); ok {
		return v, nil
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		gen := c.generation(key)

		c.metrics.CacheEvent(collection(key), metrics.CacheFetch)
		value, err = fetch(ctx)
		if err != nil {
			return nil, err
		}

		if c.store(key, gen, value) {
			return value, nil
		}

		c.metrics.CacheEvent(collection(key), metrics.CacheDiscard)
		log.Debugf("Query %s was invalidated during fetch (attempt %d)", key, attempt)
	}

	// Still invalidated after the last attempt: hand the value to the caller
	// but leave the entry stale so the next read refetches.
	return value, nil
}

func (c *Cache) freshValue(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.fresh || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e.gen
}

func (c *Cache) store(key string, gen uint64, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key]
	if e == nil || e.gen != gen {
		return false
	}

	e.value = value
	e.hasValue = true
	e.fresh = true
	e.updatedAt = time.Now()
	return true
}

// Set stores value as fresh, bumping the key's generation so any in-flight
// fetch for the key is discarded.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	e.gen++
	e.value = value
	e.hasValue = true
	e.fresh = true
	e.updatedAt = time.Now()
}

// Peek returns the last stored value regardless of freshness.
func (c *Cache) Peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// IsStale reports whether the next Get for key would fetch.
func (c *Cache) IsStale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return !ok || !e.fresh || !e.hasValue
}

// UpdatedAt returns when key was last stored.
func (c *Cache) UpdatedAt(key string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.updatedAt
	}
	return time.Time{}
}

// Invalidate marks keys stale. Their last values stay readable through Peek
// until the refetch lands.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		e := c.entry(key)
		e.gen++
		e.fresh = false
		c.metrics.CacheEvent(collection(key), metrics.CacheInvalidate)
	}
}

// InvalidatePrefix marks every key with the prefix stale and returns how many
// were affected.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		e.gen++
		e.fresh = false
		c.metrics.CacheEvent(collection(key), metrics.CacheInvalidate)
		n++
	}
	return n
}

// Reset drops the value of key and bumps its generation.
func (c *Cache) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	e.gen++
	e.value = nil
	e.hasValue = false
	e.fresh = false
}

// ResetPrefix resets every key with the prefix.
func (c *Cache) ResetPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		e.gen++
		e.value = nil
		e.hasValue = false
		e.fresh = false
		n++
	}
	return n
}

// Keys returns the keys with the prefix that currently hold a value.
func (c *Cache) Keys(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0)
	for key, e := range c.entries {
		if e.hasValue && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// entry must be called with c.mu held.
func (c *Cache) entry(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// collection is the metrics label for a key: the part before the first colon.
func collection(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
