package planner

import (
	"sync"
	"time"
)

// maxProviderBackoff caps the consecutive-error backoff window.
const maxProviderBackoff = 5 * time.Minute

// RateLimiter tracks consecutive provider errors and enforces an
// exponential backoff window. It is explicit injected state rather than a
// package global so tests can construct independent instances.
type RateLimiter struct {
	mu                sync.Mutex
	consecutiveErrors int
	backoffUntil      time.Time
	now               func() time.Time
}

// NewRateLimiter creates a limiter using the wall clock.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{now: time.Now}
}

// NewRateLimiterWithClock creates a limiter with a controllable clock for tests.
func NewRateLimiterWithClock(now func() time.Time) *RateLimiter {
	return &RateLimiter{now: now}
}

// Check returns a RateLimitError while the backoff window is open.
func (r *RateLimiter) Check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if remaining := r.backoffUntil.Sub(r.now()); remaining > 0 {
		return &RateLimitError{RetryAfter: remaining}
	}
	return nil
}

// RecordFailure registers a rate-limit response: 2^n seconds of backoff,
// capped at five minutes.
func (r *RateLimiter) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveErrors++
	backoff := time.Duration(1<<uint(r.consecutiveErrors)) * time.Second
	if backoff > maxProviderBackoff {
		backoff = maxProviderBackoff
	}
	r.backoffUntil = r.now().Add(backoff)
}

// RecordSuccess clears the backoff state.
func (r *RateLimiter) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveErrors = 0
	r.backoffUntil = time.Time{}
}

// ConsecutiveErrors returns the current error streak.
func (r *RateLimiter) ConsecutiveErrors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutiveErrors
}
