package ratelimit

import (
	"hash/maphash"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps a key to a shard index source.
type Hasher[K comparable] func(key K) uint64

// StringHasher hashes string keys with xxhash.
func StringHasher(key string) uint64 {
	return xxhash.Sum64String(key)
}

// comparableHasher returns a Hasher that works for any comparable key.
func comparableHasher[K comparable]() Hasher[K] {
	seed := maphash.MakeSeed()
	return func(key K) uint64 {
		return maphash.Comparable(seed, key)
	}
}

type options[K comparable] struct {
	now    func() time.Time
	shards int
	hasher Hasher[K]
}

// Option configures a limiter.
type Option[K comparable] func(*options[K])

// WithClock replaces time.Now as the limiter's time source. The clock applies
// to every entity of the limiter.
func WithClock[K comparable](now func() time.Time) Option[K] {
	return func(o *options[K]) {
		if now != nil {
			o.now = now
		}
	}
}

// WithShards sets the shard count of a ShardedLimiter. Values below 1 are
// ignored. MemoryLimiter ignores this option.
func WithShards[K comparable](n int) Option[K] {
	return func(o *options[K]) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithHasher sets the key hash used by ShardedLimiter to pick a shard.
func WithHasher[K comparable](h Hasher[K]) Option[K] {
	return func(o *options[K]) {
		if h != nil {
			o.hasher = h
		}
	}
}

const defaultShards = 32

func buildOptions[K comparable](opts []Option[K]) options[K] {
	o := options[K]{
		now:    time.Now,
		shards: defaultShards,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasher == nil {
		o.hasher = comparableHasher[K]()
	}
	return o
}
