package ratelimit

import "time"

// ShardedLimiter spreads entities across independently locked shards. A key
// always maps to the same shard, so operations on one entity are serialized
// exactly as in MemoryLimiter while unrelated entities rarely contend.
type ShardedLimiter[K comparable] struct {
	shards []*MemoryLimiter[K]
	hash   Hasher[K]
}

// NewShardedLimiter creates an empty limiter with WithShards shards
// (32 by default).
func NewShardedLimiter[K comparable](opts ...Option[K]) *ShardedLimiter[K] {
	o := buildOptions(opts)
	s := &ShardedLimiter[K]{
		shards: make([]*MemoryLimiter[K], o.shards),
		hash:   o.hasher,
	}
	for i := range s.shards {
		s.shards[i] = &MemoryLimiter[K]{
			now:     o.now,
			buckets: make(map[K]*Bucket),
		}
	}
	return s
}

func (s *ShardedLimiter[K]) shard(key K) *MemoryLimiter[K] {
	return s.shards[s.hash(key)%uint64(len(s.shards))]
}

// Register inserts or replaces the bucket for key.
func (s *ShardedLimiter[K]) Register(key K, capacity uint, window time.Duration) {
	s.shard(key).Register(key, capacity, window)
}

// CheckAndConsume refills key's bucket if its window elapsed and consumes one
// unit of quota when available.
func (s *ShardedLimiter[K]) CheckAndConsume(key K) Decision {
	return s.shard(key).CheckAndConsume(key)
}

// Unregister removes key and returns its last stored state.
func (s *ShardedLimiter[K]) Unregister(key K) (Bucket, bool) {
	return s.shard(key).Unregister(key)
}

// RemainingQuota returns the quota left for key without consuming it.
func (s *ShardedLimiter[K]) RemainingQuota(key K) (uint, bool) {
	return s.shard(key).RemainingQuota(key)
}

// Inspect returns a refill-aware snapshot of key's bucket.
func (s *ShardedLimiter[K]) Inspect(key K) (Bucket, bool) {
	return s.shard(key).Inspect(key)
}

// Len returns the number of registered entities. Shards are counted one at a
// time, so the total is approximate while other goroutines mutate the limiter.
func (s *ShardedLimiter[K]) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

// Shards returns the number of shards.
func (s *ShardedLimiter[K]) Shards() int {
	return len(s.shards)
}
