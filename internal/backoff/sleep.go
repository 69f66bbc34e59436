package backoff

import (
	"context"
	"time"
)

// Sleep waits for the policy's delay for the given attempt, respecting
// context cancellation. Returns ctx.Err() if the context ended first.
func Sleep(ctx context.Context, policy Policy, attempt int) error {
	return SleepFor(ctx, policy.Delay(attempt))
}

// SleepFor sleeps for the given duration, respecting context cancellation.
func SleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
