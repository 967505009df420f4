// ============================================================================
// Custodian Tracked Memoization
// ============================================================================
//
// Package: internal/memoize
// File: memoize.go
// Purpose: Wraps a pure function with a bounded LRU cache, and records
// the wrapped cache in a process-wide registry so every memoized
// function can be flushed together with one call - TrackedCacheClear.
// The supervisor calls TrackedCacheClear between successive attempts
// and before running validators, so handlers/validators re-parse any
// on-disk output that may have changed underneath a stale cache entry.
//
// ============================================================================

package memoize

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds a memoized function's cache when the caller
// doesn't specify one.
const DefaultCacheSize = 128

// tracked is the interface every registered cache satisfies so the
// registry can flush caches of differing key/value types uniformly.
type tracked interface {
	Purge()
}

var (
	registryMu sync.Mutex
	registry   []tracked
)

// register adds c to the process-wide registry under lock.
func register(c tracked) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, c)
}

// TrackedCacheClear empties every cache created via Wrap or NewCache
// since process start.
func TrackedCacheClear() {
	registryMu.Lock()
	caches := append([]tracked(nil), registry...)
	registryMu.Unlock()

	for _, c := range caches {
		c.Purge()
	}
}

// Cache is a bounded, tracked LRU cache for a single key/value pair
// type, independent of any wrapped function (useful when the caller
// wants manual Get/Add control rather than Wrap's call-through
// semantics).
type Cache[K comparable, V any] struct {
	lru *lru.Cache[K, V]
}

// NewCache builds a tracked cache of the given size and registers it
// for TrackedCacheClear.
func NewCache[K comparable, V any](size int) (*Cache[K, V], error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	c := &Cache[K, V]{lru: l}
	register(c)
	return c, nil
}

func (c *Cache[K, V]) Get(key K) (V, bool) { return c.lru.Get(key) }
func (c *Cache[K, V]) Add(key K, value V)  { c.lru.Add(key, value) }
func (c *Cache[K, V]) Purge()              { c.lru.Purge() }

// Func1 is a single-argument pure function suitable for Wrap.
type Func1[K comparable, V any] func(K) (V, error)

// Wrap returns a memoized version of fn backed by a bounded LRU cache
// of the given size. The wrapped cache is registered so
// TrackedCacheClear empties it along with every other memoized
// function in the process.
//
// Errors are never cached: a call that fails is retried in full on its
// next invocation, since a failure is rarely a pure function of its
// input (e.g. a transient read of a not-yet-flushed file).
func Wrap[K comparable, V any](size int, fn Func1[K, V]) Func1[K, V] {
	c, err := NewCache[K, V](size)
	if err != nil {
		// size is always validated to be positive by NewCache before
		// reaching lru.New, so construction cannot fail in practice.
		return fn
	}
	var mu sync.Mutex
	return func(k K) (V, error) {
		mu.Lock()
		if v, ok := c.Get(k); ok {
			mu.Unlock()
			return v, nil
		}
		mu.Unlock()

		v, err := fn(k)
		if err != nil {
			var zero V
			return zero, err
		}

		mu.Lock()
		c.Add(k, v)
		mu.Unlock()
		return v, nil
	}
}
