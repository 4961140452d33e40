// Rate limiter for operation endpoints, keyed by requester ID. Keeps one
// player from machine-gunning offers at a seller.
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter tracks request counts per key with a sliding window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxRate int           // Max requests per window
	window  time.Duration // Time window
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a rate limiter allowing maxRate requests per window.
func NewRateLimiter(maxRate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		maxRate: maxRate,
		window:  window,
	}
	// Periodic cleanup of stale entries.
	go func() {
		for {
			time.Sleep(time.Hour)
			rl.cleanup()
		}
	}()
	return rl
}

// Allow checks whether the given key is within rate limits.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	now := time.Now()

	if !ok || now.Sub(b.lastReset) >= rl.window {
		rl.buckets[key] = &bucket{tokens: rl.maxRate - 1, lastReset: now}
		return true
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter returns how many seconds until the window resets for this key.
func (rl *RateLimiter) RetryAfter(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return 0
	}
	remaining := rl.window - time.Since(b.lastReset)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastReset) > 2*rl.window {
			delete(rl.buckets, key)
		}
	}
}

// limitBy wraps a handler, rate-limiting by the request's owner parameter
// (falling back to the remote address). Returns 429 when exceeded.
func limitBy(rl *RateLimiter, param string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get(param)
		if key == "" {
			key = r.RemoteAddr
		}
		if !rl.Allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(key)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
