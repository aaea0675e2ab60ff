package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_BackoffSequence(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval: 2 * time.Second,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}

	bo := policy.newBackOff()

	// Randomization is disabled, so the sequence is exact: doubling until
	// the cap.
	assert.Equal(t, 2*time.Second, bo.NextBackOff())
	assert.Equal(t, 4*time.Second, bo.NextBackOff())
	assert.Equal(t, 5*time.Second, bo.NextBackOff())
	assert.Equal(t, 5*time.Second, bo.NextBackOff())
}

func TestSleepBackoff(t *testing.T) {
	stop := make(chan struct{})

	assert.True(t, sleepBackoff(stop, time.Millisecond))

	close(stop)
	start := time.Now()
	assert.False(t, sleepBackoff(stop, time.Minute))
	assert.Less(t, time.Since(start), time.Second)
}
