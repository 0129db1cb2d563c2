package github

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// staleAfter is how long rate-limit headers stay authoritative.
const staleAfter = 5 * time.Minute

// RateLimitState tracks the REST quota reported by response headers.
// It is injected state owned by the client, not a package global.
type RateLimitState struct {
	mu          sync.Mutex
	remaining   int
	limit       int
	resetAt     time.Time
	lastChecked time.Time
	now         func() time.Time
}

// NewRateLimitState creates a tracker using the wall clock.
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{remaining: -1, now: time.Now}
}

// Update parses X-RateLimit-* headers from a response.
func (s *RateLimitState) Update(h http.Header) {
	remaining, err1 := strconv.Atoi(h.Get("X-Ratelimit-Remaining"))
	limit, err2 := strconv.Atoi(h.Get("X-Ratelimit-Limit"))
	if err1 != nil || err2 != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = remaining
	s.limit = limit
	if reset, err := strconv.ParseInt(h.Get("X-Ratelimit-Reset"), 10, 64); err == nil {
		s.resetAt = time.Unix(reset, 0)
	}
	s.lastChecked = s.now()
}

// Check returns a RateLimitError when the quota is exhausted. Stale
// state is ignored.
func (s *RateLimitState) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastChecked.IsZero() || s.now().Sub(s.lastChecked) > staleAfter {
		return nil
	}
	if s.remaining == 0 {
		retryAfter := s.resetAt.Sub(s.now())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}
	return nil
}

// Remaining returns the last reported remaining quota, -1 when unknown.
func (s *RateLimitState) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}
