package planner

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors classifying gateway failures. Transport and parse
// failures are retryable; a missing configuration cannot self-heal and is
// terminal.
var (
	// ErrConfig indicates required planner credentials or settings are
	// missing. Never retried.
	ErrConfig = errors.New("planner configuration missing")

	// ErrTransport indicates a network or provider-side failure.
	ErrTransport = errors.New("planner transport failure")

	// ErrParse indicates the model response did not conform to the
	// expected structure. Retryable, since a re-prompt may succeed.
	ErrParse = errors.New("planner response parse failure")
)

// RateLimitError signals an explicit backoff request from the provider.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("planner rate limited, retry after %s", e.RetryAfter)
}

// parseError wraps a structural validation failure with the offending
// content truncated for logs.
func parseError(reason string, raw string) error {
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return fmt.Errorf("%w: %s (content: %q)", ErrParse, reason, raw)
}
