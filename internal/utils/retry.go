package utils

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"monitoring-service/internal/logging"
	"monitoring-service/internal/permanent"
)

// RetryPolicy bounds attempts and the exponential backoff between them.
// A zero BaseDelay retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns a full-jitter delay for the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int, rnd func(int64) int64) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}
	ceiling := p.BaseDelay
	for i := 1; i < attempt && ceiling < limit; i++ {
		if ceiling > limit/2 {
			ceiling = limit
			break
		}
		ceiling *= 2
	}
	if ceiling > limit {
		ceiling = limit
	}
	if rnd == nil {
		rnd = rand.Int63n
	}
	n := int64(ceiling)
	if n < math.MaxInt64 {
		n++
	}
	return time.Duration(rnd(n))
}

// Retry runs fn until it succeeds, returns a permanent error, attempts run out,
// or ctx is done. It returns the number of attempts made and the last error.
func Retry(ctx context.Context, logger *logging.Logger, policy RetryPolicy, fn func(attempt int) error) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if permanent.Is(err) {
			logger.Errorf("Attempt %d/%d failed permanently: %v", attempt, maxAttempts, err)
			return attempt, err
		}
		logger.Warnf("Attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt == maxAttempts {
			break
		}
		if delay := policy.Backoff(attempt, nil); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return attempt, fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
		}
	}
	return maxAttempts, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
