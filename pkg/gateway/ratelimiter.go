package gateway

import (
	"sync"
	"time"
)

const (
	limitRate        = "rate limit exceeded"
	limitConcurrency = "too many concurrent requests"
)

// ClientRateLimiter implements sliding window rate limiting for one client
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
	now                func() time.Time
}

// NewClientRateLimiter creates a limiter; a zero limit disables that check
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		requests:          make([]time.Time, 0),
		now:               time.Now,
	}
}

// Acquire admits a request and records its start, or returns the reason it was refused.
// Every admitted request must be followed by Release.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConcurrent > 0 && r.concurrentRequests >= r.maxConcurrent {
		return false, limitConcurrency
	}

	now := r.now()
	r.prune(now)

	if r.requestsPerMinute > 0 && len(r.requests) >= r.requestsPerMinute {
		return false, limitRate
	}

	r.requests = append(r.requests, now)
	r.concurrentRequests++
	return true, ""
}

// Release records the end of an admitted request
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests > 0 {
		r.concurrentRequests--
	}
}

// Idle reports whether the client has no recent or running requests
func (r *ClientRateLimiter) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return r.concurrentRequests == 0 && len(r.requests) == 0
}

// GetStats returns current rate limiter statistics
func (r *ClientRateLimiter) GetStats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return len(r.requests), r.concurrentRequests
}

func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	valid := r.requests[:0]
	for _, reqTime := range r.requests {
		if reqTime.After(cutoff) {
			valid = append(valid, reqTime)
		}
	}
	r.requests = valid
}

// limiterRegistry holds one limiter per client key
type limiterRegistry struct {
	mu                sync.Mutex
	limiters          map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
}

func newLimiterRegistry(requestsPerMinute, maxConcurrent int) *limiterRegistry {
	return &limiterRegistry{
		limiters:          make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

func (r *limiterRegistry) enabled() bool {
	return r.requestsPerMinute > 0 || r.maxConcurrent > 0
}

func (r *limiterRegistry) get(key string) *ClientRateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.limiters[key]
	if !ok {
		limiter = NewClientRateLimiter(r.requestsPerMinute, r.maxConcurrent)
		r.limiters[key] = limiter
	}
	return limiter
}

// sweep drops limiters of clients with no activity in the last minute
func (r *limiterRegistry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, limiter := range r.limiters {
		if limiter.Idle() {
			delete(r.limiters, key)
			removed++
		}
	}
	return removed
}
