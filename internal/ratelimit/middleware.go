package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"rategate/internal/models"
)

// Policy is the quota assigned to an entity on first sight.
type Policy struct {
	Name     string
	Capacity uint
	Window   time.Duration
}

// KeyFunc derives the entity key and the policy to register it with.
type KeyFunc func(r *http.Request) (key string, policy Policy)

// Middleware returns HTTP middleware that gates every request through limiter.
// Unknown entities are registered with the policy chosen by keyFunc and then
// checked again, so the first request of a new entity consumes from its fresh
// bucket. Denied requests get 429 with a Retry-After header.
func Middleware(limiter Limiter[string], keyFunc KeyFunc) func(http.Handler) http.Handler {
	// Serializes first-contact registration so concurrent first requests of
	// one entity cannot reset each other's bucket.
	var registerMu sync.Mutex

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, policy := keyFunc(r)

			decision := limiter.CheckAndConsume(key)
			if decision == NotRegistered {
				registerMu.Lock()
				if _, ok := limiter.Inspect(key); !ok {
					limiter.Register(key, policy.Capacity, policy.Window)
					slog.Debug("Registered rate limited entity",
						"key", key,
						"policy", policy.Name,
						"capacity", policy.Capacity,
						"window", policy.Window,
					)
				}
				registerMu.Unlock()
				decision = limiter.CheckAndConsume(key)
			}

			// Header values are a snapshot taken after the decision; concurrent
			// requests of the same entity may already have moved on.
			bucket, ok := limiter.Inspect(key)
			if ok {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatUint(uint64(bucket.Capacity), 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatUint(uint64(bucket.Remaining), 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(bucket.ResetAt().Unix(), 10))
			}

			if decision != Allowed {
				retryAfter := retryAfterSeconds(bucket, time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse("Rate limit exceeded", models.ErrorCodeRateLimitExceeded)
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Rate limit exceeded",
					"key", key,
					"policy", policy.Name,
					"capacity", bucket.Capacity,
					"retry_after", retryAfter,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds the time left in the window up to whole seconds,
// never returning less than 1.
func retryAfterSeconds(b Bucket, now time.Time) int {
	left := b.ResetAt().Sub(now).Seconds()
	secs := int(math.Ceil(left))
	if secs < 1 {
		return 1
	}
	return secs
}

// NewKeyFunc returns a KeyFunc that keys authenticated callers by the value of
// apiKeyHeader and everyone else by client IP. Proxy headers are only
// consulted when trustProxy is set.
func NewKeyFunc(anonymous, authenticated Policy, apiKeyHeader string, trustProxy bool) KeyFunc {
	return func(r *http.Request) (string, Policy) {
		if apiKeyHeader != "" {
			if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
				return "key:" + apiKey, authenticated
			}
		}
		return "ip:" + ClientIP(r, trustProxy), anonymous
	}
}

// ClientIP extracts the client IP from the request. With trustProxy it prefers
// the first X-Forwarded-For hop and then X-Real-IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
