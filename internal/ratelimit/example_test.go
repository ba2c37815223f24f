package ratelimit_test

import (
	"fmt"
	"time"

	"rategate/internal/ratelimit"
)

func ExampleMemoryLimiter() {
	limiter := ratelimit.NewMemoryLimiter[string]()

	limiter.Register("user1", 2, time.Minute)

	for i := 0; i < 3; i++ {
		fmt.Println(limiter.CheckAndConsume("user1"))
	}
	fmt.Println(limiter.CheckAndConsume("user2"))
	// Output:
	// allowed
	// allowed
	// denied
	// not_registered
}

func ExampleMemoryLimiter_firstContact() {
	limiter := ratelimit.NewMemoryLimiter[string]()
	ip := "203.0.113.7"

	decision := limiter.CheckAndConsume(ip)
	if decision == ratelimit.NotRegistered {
		limiter.Register(ip, 5, 10*time.Second)
		decision = limiter.CheckAndConsume(ip)
	}

	remaining, _ := limiter.RemainingQuota(ip)
	fmt.Println(decision, remaining)
	// Output:
	// allowed 4
}
