// Package ratelimit provides per-entity rate limiting using a fixed-window
// bucket with lazy refill. Each registered entity owns a bucket of Capacity
// requests that is reset to full the first time it is accessed after its
// Window has elapsed. Entities are registered and removed explicitly; there is
// no background eviction.
//
// Two implementations are provided: MemoryLimiter guards the whole key space
// with a single mutex, and ShardedLimiter spreads keys over independently
// locked shards. Both are safe for concurrent use and make the
// refill-then-consume step atomic per entity.
package ratelimit

import "time"

// Decision is the outcome of CheckAndConsume.
type Decision int

const (
	// NotRegistered means the key is unknown and must be registered first.
	NotRegistered Decision = iota
	// Denied means the entity's quota for the current window is exhausted.
	Denied
	// Allowed means one unit of quota was consumed.
	Allowed
)

func (d Decision) String() string {
	switch d {
	case NotRegistered:
		return "not_registered"
	case Denied:
		return "denied"
	case Allowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Bucket is a snapshot of one entity's quota state.
type Bucket struct {
	Remaining   uint          `json:"remaining"`    // Requests left in the current window
	Capacity    uint          `json:"capacity"`     // Requests allowed per window
	Window      time.Duration `json:"window"`       // Refill period
	WindowStart time.Time     `json:"window_start"` // When the current window began
}

// ResetAt returns when the current window ends.
func (b Bucket) ResetAt() time.Time {
	return b.WindowStart.Add(b.Window)
}

// expired reports whether the window has elapsed at now.
func (b *Bucket) expired(now time.Time) bool {
	return now.Sub(b.WindowStart) >= b.Window
}

// refill resets the bucket when its window has elapsed. Elapsed windows are
// not accumulated: any number of them yields exactly Capacity.
func (b *Bucket) refill(now time.Time) {
	if b.expired(now) {
		b.Remaining = b.Capacity
		b.WindowStart = now
	}
}

// consume refills if needed and then takes one unit of quota.
func (b *Bucket) consume(now time.Time) Decision {
	b.refill(now)
	if b.Remaining > 0 {
		b.Remaining--
		return Allowed
	}
	return Denied
}

// view returns the state the bucket would have at now without mutating it.
func (b Bucket) view(now time.Time) Bucket {
	b.refill(now)
	return b
}

// Limiter defines the per-entity rate limiting contract. Implementations must
// be safe for concurrent use.
type Limiter[K comparable] interface {
	// Register inserts or replaces the bucket for key with a full quota and a
	// window starting now. Any previous state for key is discarded.
	Register(key K, capacity uint, window time.Duration)

	// CheckAndConsume refills the bucket if its window has elapsed and then
	// consumes one unit if any remain.
	CheckAndConsume(key K) Decision

	// Unregister removes key and returns its last state.
	Unregister(key K) (Bucket, bool)

	// RemainingQuota returns the quota left for key without consuming it.
	// If the window has elapsed the refilled value is reported, but the
	// stored state is left for the next CheckAndConsume to update.
	RemainingQuota(key K) (uint, bool)

	// Inspect returns a snapshot of key's bucket as RemainingQuota sees it.
	Inspect(key K) (Bucket, bool)

	// Len returns the number of registered entities.
	Len() int
}
