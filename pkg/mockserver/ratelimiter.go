package mockserver

import (
	"sync"
	"time"
)

// RateLimiter implements per-client rate limiting with a sliding window
type RateLimiter struct {
	mu                sync.Mutex
	limits            map[string][]int64
	maxRequestsPerMin int
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
	now               func() time.Time
}

// NewRateLimiter creates a limiter and starts its cleanup loop. A limit of
// zero or less disables limiting.
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:            make(map[string][]int64),
		maxRequestsPerMin: maxRequestsPerMinute,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
	}
	go rl.runCleanup()
	return rl
}

// Allow records a request from client and reports whether it is within the limit
func (rl *RateLimiter) Allow(client string) bool {
	if rl.maxRequestsPerMin <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UnixMilli()
	requests := prune(rl.limits[client], now)
	if len(requests) >= rl.maxRequestsPerMin {
		rl.limits[client] = requests
		return false
	}
	rl.limits[client] = append(requests, now)
	return true
}

// RetryAfter returns the seconds until client may send again
func (rl *RateLimiter) RetryAfter(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	requests := rl.limits[client]
	if len(requests) == 0 {
		return 0
	}
	retryAfterMs := 60000 - (rl.now().UnixMilli() - requests[0])
	if retryAfterMs < 0 {
		return 0
	}
	return int((retryAfterMs + 999) / 1000)
}

// Stop stops the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *RateLimiter) runCleanup() {
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

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UnixMilli()
	for client, requests := range rl.limits {
		if valid := prune(requests, now); len(valid) == 0 {
			delete(rl.limits, client)
		} else {
			rl.limits[client] = valid
		}
	}
}

// prune drops timestamps older than one minute
func prune(requests []int64, now int64) []int64 {
	i := 0
	for i < len(requests) && now-requests[i] >= 60000 {
		i++
	}
	return requests[i:]
}
