// Package cache provides a namespaced, TTL-based in-memory key/value store.
//
// Entries are expired lazily on read; there is no background sweeper. Keys
// in different namespaces never collide, even when the key strings are
// identical.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is a namespaced expiring key/value store. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	buckets map[string]map[string]entry
	now     func() time.Time
}

// New creates an empty store using the wall clock.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty store with an injected clock. Tests use this
// to control expiry deterministically.
func NewWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		buckets: make(map[string]map[string]entry),
		now:     now,
	}
}

// Get returns the value stored under (namespace, key) if it has not expired.
// An expired entry is removed and reported as a miss.
func (s *Store) Get(namespace, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[namespace]
	if !ok {
		return "", false
	}
	e, ok := bucket[key]
	if !ok {
		return "", false
	}
	if !s.now().Before(e.expiresAt) {
		delete(bucket, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under (namespace, key) for ttl, overwriting any previous
// entry regardless of its remaining lifetime.
func (s *Store) Set(namespace, key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[namespace]
	if !ok {
		bucket = make(map[string]entry)
		s.buckets[namespace] = bucket
	}
	bucket[key] = entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
}

// Delete removes the entry under (namespace, key) if present.
func (s *Store) Delete(namespace, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bucket, ok := s.buckets[namespace]; ok {
		delete(bucket, key)
	}
}

// Len reports the number of entries currently held in a namespace,
// including entries that have expired but not yet been read.
func (s *Store) Len(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets[namespace])
}
