package ratelimit

import (
	"sync"
	"time"
)

// MemoryLimiter is an in-memory limiter that serializes every operation behind
// a single mutex. It is the simplest correct choice; use ShardedLimiter when
// many distinct entities contend for the lock.
type MemoryLimiter[K comparable] struct {
	now func() time.Time

	mu      sync.Mutex
	buckets map[K]*Bucket
}

// NewMemoryLimiter creates an empty limiter.
func NewMemoryLimiter[K comparable](opts ...Option[K]) *MemoryLimiter[K] {
	o := buildOptions(opts)
	return &MemoryLimiter[K]{
		now:     o.now,
		buckets: make(map[K]*Bucket),
	}
}

// Register inserts or replaces the bucket for key.
func (m *MemoryLimiter[K]) Register(key K, capacity uint, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets[key] = &Bucket{
		Remaining:   capacity,
		Capacity:    capacity,
		Window:      window,
		WindowStart: m.now(),
	}
}

// CheckAndConsume refills key's bucket if its window elapsed and consumes one
// unit of quota when available.
func (m *MemoryLimiter[K]) CheckAndConsume(key K) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.buckets[key]
	if !exists {
		return NotRegistered
	}
	return b.consume(m.now())
}

// Unregister removes key and returns its last stored state.
func (m *MemoryLimiter[K]) Unregister(key K) (Bucket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.buckets[key]
	if !exists {
		return Bucket{}, false
	}
	delete(m.buckets, key)
	return *b, true
}

// RemainingQuota returns the quota left for key without consuming it.
func (m *MemoryLimiter[K]) RemainingQuota(key K) (uint, bool) {
	b, ok := m.Inspect(key)
	return b.Remaining, ok
}

// Inspect returns a copy of key's bucket as it would look after a refill
// check at the current time. Stored state is not modified.
func (m *MemoryLimiter[K]) Inspect(key K) (Bucket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.buckets[key]
	if !exists {
		return Bucket{}, false
	}
	return b.view(m.now()), true
}

// Len returns the number of registered entities.
func (m *MemoryLimiter[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
