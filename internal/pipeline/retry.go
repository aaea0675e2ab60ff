package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls the exponential backoff applied between stage
// attempts. One policy is shared by all stages; the per-stage attempt budget
// comes from StageDefinition.MaxRetries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy is the backoff used unless the manager is configured
// otherwise: 2s, 4s, 8s... capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// newBackOff builds a fresh backoff sequence for one stage execution.
// Randomization is disabled so retry timing is reproducible in tests; the
// generation backend applies its own jitter where it matters.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // attempt budget is enforced by the stage loop
	b.Reset()
	return b
}

// sleepBackoff waits for d or until stop is closed. It returns false when
// interrupted, which the stage loop treats as cancellation.
func sleepBackoff(stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
