package engine

import (
	"context"
	"time"

	"github.com/use-agent/jobsnap/models"
)

// maxBackoff caps the delay between two attempts.
const maxBackoff = 30 * time.Second

// retryScrape calls fn until it succeeds, fails with a non-retryable
// error, or maxAttempts is reached. It returns the number of attempts made.
func retryScrape(ctx context.Context, maxAttempts int, backoff time.Duration, fn func(ctx context.Context) ([]models.JobRecord, error)) ([]models.JobRecord, int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		records, err := fn(ctx)
		if err == nil {
			return records, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || !models.IsRetryable(err) || attempt == maxAttempts {
			return nil, attempt, lastErr
		}

		delay := backoffFor(attempt, backoff)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, lastErr
		case <-timer.C:
		}
	}
	return nil, maxAttempts, lastErr
}

// backoffFor doubles base per completed attempt, capped at maxBackoff.
func backoffFor(attempt int, base time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
