// Package cache provides a generic time-boxed key/value store. Each
// namespace (search results, downloaded files) gets its own Store instance
// with an independent TTL, a size-bounded LRU backing, lazy expiry, and
// Prometheus instrumentation.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Clock returns the current time. Injectable so TTL expiry is
// deterministically testable.
type Clock func() time.Time

// Config holds the knobs for one Store namespace.
type Config struct {
	// Size is the maximum number of entries; the least recently used entry
	// is evicted beyond it.
	Size int

	// TTL is the time-to-live applied to every entry in this namespace.
	TTL time.Duration

	// Group labels this namespace in Prometheus metrics.
	Group string

	// Clock overrides the time source. Defaults to time.Now.
	Clock Clock
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Store is a time-boxed key/value store for a single namespace. Operations
// are safe for concurrent use without external locking. Entries are owned
// exclusively by the store: values are passed through the configured Copy
// function (when set) on both Set and Get, so callers never share a
// reference with the cached entry.
type Store[T any] struct {
	inner *lru.Cache[string, entry[T]]
	ttl   time.Duration
	now   Clock
	group string

	// Copy deep-copies a value on the way in and out. Nil means values are
	// stored and returned as-is, which is only safe for value types.
	Copy func(T) T
}

// NewStore creates a store for one namespace.
func NewStore[T any](cfg Config) (*Store[T], error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("cache: size must be positive, got %d", cfg.Size)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %v", cfg.TTL)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	group := cfg.Group
	inner, err := lru.NewWithEvict[string, entry[T]](cfg.Size, func(string, entry[T]) {
		if group != "" {
			EvictionsTotal.WithLabelValues(group).Inc()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	s := &Store[T]{
		inner: inner,
		ttl:   cfg.TTL,
		now:   now,
		group: group,
	}
	if group != "" {
		registerEntriesCollector(group, s.Len)
	}
	return s, nil
}

// Get retrieves a value by key. An entry past its expiry behaves as a miss
// and the stale entry is discarded (lazy expiry).
func (s *Store[T]) Get(key string) (T, bool) {
	e, ok := s.inner.Get(key)
	if ok && s.now().After(e.expiresAt) {
		s.inner.Remove(key)
		ok = false
	}

	if !ok {
		if s.group != "" {
			MissesTotal.WithLabelValues(s.group).Inc()
		}
		var zero T
		return zero, false
	}

	if s.group != "" {
		HitsTotal.WithLabelValues(s.group).Inc()
	}
	if s.Copy != nil {
		return s.Copy(e.value), true
	}
	return e.value, true
}

// Set stores a fully assembled value under key with the namespace TTL.
// An existing entry is overwritten.
func (s *Store[T]) Set(key string, value T) {
	if s.Copy != nil {
		value = s.Copy(value)
	}
	s.inner.Add(key, entry[T]{
		value:     value,
		expiresAt: s.now().Add(s.ttl),
	})
}

// Len returns the number of resident entries, including not-yet-collected
// expired ones.
func (s *Store[T]) Len() int {
	return s.inner.Len()
}

// Close unregisters this namespace's metrics collector.
func (s *Store[T]) Close() error {
	if s.group != "" {
		unregisterEntriesCollector(s.group)
	}
	return nil
}
