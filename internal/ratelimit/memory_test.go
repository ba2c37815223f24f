package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// limiterFactories lets each behavioural test run against both implementations.
func limiterFactories(clock *fakeClock) map[string]func() Limiter[string] {
	return map[string]func() Limiter[string]{
		"memory": func() Limiter[string] {
			return NewMemoryLimiter(WithClock[string](clock.Now))
		},
		"sharded": func() Limiter[string] {
			return NewShardedLimiter(
				WithClock[string](clock.Now),
				WithShards[string](4),
				WithHasher(StringHasher),
			)
		},
	}
}

func TestNewMemoryLimiter(t *testing.T) {
	limiter := NewMemoryLimiter[string]()

	require.NotNil(t, limiter)
	assert.Equal(t, 0, limiter.Len())
}

func TestLimiter_ExhaustsWithinWindow(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("user1", 2, 60*time.Second)

			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
			assert.Equal(t, Denied, limiter.CheckAndConsume("user1"))
		})
	}
}

func TestLimiter_RefillAfterWindow(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("user1", 3, time.Minute)

			for i := 0; i < 3; i++ {
				require.Equal(t, Allowed, limiter.CheckAndConsume("user1"), "request %d", i+1)
			}
			require.Equal(t, Denied, limiter.CheckAndConsume("user1"))

			clock.Advance(time.Minute - time.Nanosecond)
			assert.Equal(t, Denied, limiter.CheckAndConsume("user1"), "window not yet elapsed")

			clock.Advance(time.Nanosecond)
			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"), "refill at the exact boundary")

			remaining, ok := limiter.RemainingQuota("user1")
			require.True(t, ok)
			assert.Equal(t, uint(2), remaining, "refill happens before the decrement")
		})
	}
}

func TestLimiter_NoCreditForMultipleWindows(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("user1", 2, time.Second)

			clock.Advance(10 * time.Second)

			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
			assert.Equal(t, Denied, limiter.CheckAndConsume("user1"))
		})
	}
}

func TestLimiter_NotRegistered(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()

			for i := 0; i < 3; i++ {
				assert.Equal(t, NotRegistered, limiter.CheckAndConsume("unknown"))
				_, ok := limiter.RemainingQuota("unknown")
				assert.False(t, ok)
			}
			assert.Equal(t, 0, limiter.Len(), "lookups must not create entries")
		})
	}
}

func TestLimiter_ReRegisterResetsState(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("user1", 2, time.Minute)
			limiter.CheckAndConsume("user1")
			limiter.CheckAndConsume("user1")
			require.Equal(t, Denied, limiter.CheckAndConsume("user1"))

			clock.Advance(30 * time.Second)
			limiter.Register("user1", 5, 2*time.Minute)

			bucket, ok := limiter.Inspect("user1")
			require.True(t, ok)
			assert.Equal(t, uint(5), bucket.Remaining)
			assert.Equal(t, uint(5), bucket.Capacity)
			assert.Equal(t, 2*time.Minute, bucket.Window)
			assert.True(t, clock.Now().Equal(bucket.WindowStart))
			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
		})
	}
}

func TestLimiter_UnregisterThenCheck(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("user1", 3, time.Minute)
			limiter.CheckAndConsume("user1")

			removed, ok := limiter.Unregister("user1")
			require.True(t, ok)
			assert.Equal(t, uint(2), removed.Remaining)
			assert.Equal(t, uint(3), removed.Capacity)
			assert.Equal(t, time.Minute, removed.Window)

			assert.Equal(t, NotRegistered, limiter.CheckAndConsume("user1"))

			_, ok = limiter.Unregister("user1")
			assert.False(t, ok, "second removal reports absence")

			limiter.Register("user1", 1, time.Minute)
			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
		})
	}
}

func TestLimiter_ZeroCapacityAlwaysDenied(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("blocked", 0, time.Second)

			assert.Equal(t, Denied, limiter.CheckAndConsume("blocked"))
			clock.Advance(5 * time.Second)
			assert.Equal(t, Denied, limiter.CheckAndConsume("blocked"))
		})
	}
}

func TestLimiter_IndependentEntities(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("user1", 3, time.Minute)
			limiter.Register("user2", 5, time.Minute)

			for i := 0; i < 3; i++ {
				assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
			}
			assert.Equal(t, Denied, limiter.CheckAndConsume("user1"))

			remaining, ok := limiter.RemainingQuota("user2")
			require.True(t, ok)
			assert.Equal(t, uint(5), remaining)

			for i := 0; i < 5; i++ {
				assert.Equal(t, Allowed, limiter.CheckAndConsume("user2"))
			}
			assert.Equal(t, Denied, limiter.CheckAndConsume("user2"))
			assert.Equal(t, 2, limiter.Len())
		})
	}
}

func TestLimiter_RemainingQuotaDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("user1", 2, time.Minute)

			for i := 0; i < 5; i++ {
				remaining, ok := limiter.RemainingQuota("user1")
				require.True(t, ok)
				assert.Equal(t, uint(2), remaining)
			}
			assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))

			remaining, _ := limiter.RemainingQuota("user1")
			assert.Equal(t, uint(1), remaining)
		})
	}
}

func TestLimiter_RemainingQuotaIsRefillAware(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryLimiter(WithClock[string](clock.Now))
	limiter.Register("user1", 1, time.Minute)
	limiter.CheckAndConsume("user1")

	remaining, _ := limiter.RemainingQuota("user1")
	assert.Equal(t, uint(0), remaining)

	clock.Advance(time.Minute)
	remaining, _ = limiter.RemainingQuota("user1")
	assert.Equal(t, uint(1), remaining, "peek reports the post-refill value")

	// The stored bucket keeps its old window until the next consume.
	limiter.mu.Lock()
	stored := *limiter.buckets["user1"]
	limiter.mu.Unlock()
	assert.Equal(t, uint(0), stored.Remaining)
	assert.True(t, clock.Now().Add(-time.Minute).Equal(stored.WindowStart))
}

func TestMemoryLimiter_RealClockRefill(t *testing.T) {
	limiter := NewMemoryLimiter[string]()
	limiter.Register("user1", 1, 10*time.Millisecond)

	assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
	assert.Equal(t, Denied, limiter.CheckAndConsume("user1"))

	time.Sleep(25 * time.Millisecond)

	assert.Equal(t, Allowed, limiter.CheckAndConsume("user1"))
}

func TestLimiter_ConcurrentCapacityBound(t *testing.T) {
	const (
		goroutines = 50
		perRoutine = 20
		capacity   = 137
	)

	clock := newFakeClock()
	for name, factory := range limiterFactories(clock) {
		t.Run(name, func(t *testing.T) {
			limiter := factory()
			limiter.Register("shared", capacity, time.Hour)

			var allowed, denied atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perRoutine; j++ {
						switch limiter.CheckAndConsume("shared") {
						case Allowed:
							allowed.Add(1)
						case Denied:
							denied.Add(1)
						}
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(capacity), allowed.Load())
			assert.Equal(t, int64(goroutines*perRoutine-capacity), denied.Load())
		})
	}
}

func TestLimiter_ConcurrentMixedOperations(t *testing.T) {
	limiter := NewShardedLimiter(WithHasher(StringHasher))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := []string{"a", "b", "c", "d"}[id%4]
			for j := 0; j < 50; j++ {
				switch j % 5 {
				case 0:
					limiter.Register(key, 10, time.Millisecond)
				case 1:
					limiter.Unregister(key)
				case 2:
					limiter.RemainingQuota(key)
				default:
					limiter.CheckAndConsume(key)
				}
			}
		}(i)
	}
	wg.Wait()
	// No panics or data races -- run with -race flag
	assert.LessOrEqual(t, limiter.Len(), 4)
}

func TestDecision_String(t *testing.T) {
	tests := []struct {
		decision Decision
		expected string
	}{
		{NotRegistered, "not_registered"},
		{Denied, "denied"},
		{Allowed, "allowed"},
		{Decision(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.decision.String())
	}
}

func BenchmarkMemoryLimiter_CheckAndConsume(b *testing.B) {
	limiter := NewMemoryLimiter[string]()
	limiter.Register("user1", 1_000_000, time.Second)

	for b.Loop() {
		limiter.CheckAndConsume("user1")
	}
}
