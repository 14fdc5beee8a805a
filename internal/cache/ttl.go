// Package cache provides a time-boxed in-memory key/value store.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests replace it to control expiry.
type Clock func() time.Time

// Entry is a cached value with its creation time.
type Entry[V any] struct {
	Value   V
	Created time.Time
}

// TTL is an unbounded map whose entries expire ttl after they were set.
// A stale entry is reported as absent and evicted by the read that finds it.
//
// TTL is not safe for concurrent use; wrap it with Locked when it is shared
// between goroutines.
type TTL[K comparable, V any] struct {
	ttl     time.Duration
	now     Clock
	entries map[K]Entry[V]
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now Clock
}

// WithClock overrides time.Now.
func WithClock(now Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewTTL creates a cache whose entries live for ttl.
func NewTTL[K comparable, V any](ttl time.Duration, opts ...Option) *TTL[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[K, V]{
		ttl:     ttl,
		now:     o.now,
		entries: make(map[K]Entry[V]),
	}
}

// Get returns the value for key if it exists and has not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(entry.Created) > c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Entry returns the raw entry for key, including its creation time, applying
// the same expiry rule as Get.
func (c *TTL[K, V]) Entry(key K) (Entry[V], bool) {
	if _, ok := c.Get(key); !ok {
		return Entry[V]{}, false
	}
	return c.entries[key], true
}

// Set stores value under key with the current time as creation time.
func (c *TTL[K, V]) Set(key K, value V) {
	c.entries[key] = Entry[V]{Value: value, Created: c.now()}
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	delete(c.entries, key)
}

// Len returns the number of stored entries, including ones not yet evicted.
func (c *TTL[K, V]) Len() int {
	return len(c.entries)
}

// Locked serialises access to a TTL cache. Get takes the write lock because
// reads may evict.
type Locked[K comparable, V any] struct {
	mu    sync.Mutex
	inner *TTL[K, V]
}

// NewLocked creates a goroutine-safe TTL cache.
func NewLocked[K comparable, V any](ttl time.Duration, opts ...Option) *Locked[K, V] {
	return &Locked[K, V]{inner: NewTTL[K, V](ttl, opts...)}
}

func (c *Locked[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

func (c *Locked[K, V]) Entry(key K) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Entry(key)
}

func (c *Locked[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Set(key, value)
}

func (c *Locked[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Delete(key)
}

func (c *Locked[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
