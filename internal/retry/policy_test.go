package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	for _, count := range []int{0, 1, 2} {
		assert.True(t, ShouldRetry(count), "retryCount=%d should retry", count)
	}
	assert.False(t, ShouldRetry(3))
	assert.False(t, ShouldRetry(7))
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 60000*time.Millisecond, BackoffDelay(0))
	assert.Equal(t, 120000*time.Millisecond, BackoffDelay(1))
	assert.Equal(t, 240000*time.Millisecond, BackoffDelay(2))
}
