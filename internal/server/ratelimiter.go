package server

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter implements per-client sliding-window rate limiting.
type RateLimiter struct {
	limits            map[string][]time.Time
	maxRequestsPerMin int
	mu                sync.Mutex
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
	now               func() time.Time
}

// NewRateLimiter creates a rate limiter. A non-positive limit disables it.
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:            make(map[string][]time.Time),
		maxRequestsPerMin: maxRequestsPerMinute,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
	}

	if maxRequestsPerMinute > 0 {
		go rl.startCleanup()
	}

	return rl
}

// Allow records a request from key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.maxRequestsPerMin <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := prune(rl.limits[key], now)
	if len(recent) >= rl.maxRequestsPerMin {
		rl.limits[key] = recent
		return false
	}

	rl.limits[key] = append(recent, now)
	return true
}

// RetryAfter returns the whole seconds until key may send again.
func (rl *RateLimiter) RetryAfter(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	requests := rl.limits[key]
	if len(requests) == 0 {
		return 0
	}

	wait := rateWindow - rl.now().Sub(requests[0])
	if wait <= 0 {
		return 0
	}
	return int((wait + time.Second - 1) / time.Second)
}

func prune(requests []time.Time, now time.Time) []time.Time {
	valid := requests[:0]
	for _, t := range requests {
		if now.Sub(t) < rateWindow {
			valid = append(valid, t)
		}
	}
	return valid
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops clients with no requests inside the window.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, requests := range rl.limits {
		recent := prune(requests, now)
		if len(recent) == 0 {
			delete(rl.limits, key)
		} else {
			rl.limits[key] = recent
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}
