package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy controls Retry. Attempts below 1 mean a single attempt.
type RetryPolicy struct {
	Attempts int
	// Backoff is the delay before the second attempt; it doubles after each
	// failure up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Retry calls fn until it succeeds, the attempts are exhausted or ctx ends.
// The last error of fn is returned, wrapped with the attempt count.
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.Backoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
		case <-timer.C:
		}

		backoff *= 2
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	if attempts == 1 {
		return err
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
