// Package retry holds the pure retry/backoff policy for failed jobs.
package retry

import "time"

// MaxRetries is the automatic retry cap. Manual retries triggered by a
// user bypass this cap entirely.
const MaxRetries = 3

// ShouldRetry reports whether a job that failed with a retryable error
// should be re-queued automatically.
func ShouldRetry(retryCount int) bool {
	return retryCount < MaxRetries
}

// BackoffDelay returns the exponential delay before a failed job
// re-enters the queue: 2^retryCount minutes (1m, 2m, 4m for counts 0..2).
func BackoffDelay(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount)) * time.Minute
}
