package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelayWithRand(t *testing.T) {
	tests := []struct {
		name        string
		policy      Policy
		attempt     int
		randomValue float64
		expected    time.Duration
	}{
		{
			name:        "fixed interval first attempt",
			policy:      Fixed(3 * time.Second),
			attempt:     1,
			randomValue: 0.5,
			expected:    3 * time.Second,
		},
		{
			name:        "fixed interval does not grow",
			policy:      Fixed(3 * time.Second),
			attempt:     10,
			randomValue: 0.5,
			expected:    3 * time.Second,
		},
		{
			name:        "exponential second attempt doubles",
			policy:      Policy{Initial: time.Second, Max: time.Minute, Factor: 2},
			attempt:     2,
			randomValue: 0.5,
			expected:    2 * time.Second,
		},
		{
			name:        "exponential clamped to max",
			policy:      Policy{Initial: time.Second, Max: 5 * time.Second, Factor: 2},
			attempt:     10,
			randomValue: 0.5,
			expected:    5 * time.Second,
		},
		{
			name:        "jitter adds fraction of base",
			policy:      Policy{Initial: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1},
			attempt:     1,
			randomValue: 1.0,
			expected:    1100 * time.Millisecond,
		},
		{
			name:        "zero initial falls back to one second",
			policy:      Policy{},
			attempt:     1,
			randomValue: 0,
			expected:    time.Second,
		},
		{
			name:        "factor below one treated as constant",
			policy:      Policy{Initial: 2 * time.Second, Factor: 0.5},
			attempt:     4,
			randomValue: 0,
			expected:    2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.DelayWithRand(tt.attempt, tt.randomValue)
			if got != tt.expected {
				t.Errorf("DelayWithRand(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestSleepForCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := SleepFor(ctx, time.Minute); err != context.Canceled {
		t.Errorf("SleepFor() error = %v, want context.Canceled", err)
	}
}

func TestSleepForZeroDuration(t *testing.T) {
	if err := SleepFor(context.Background(), 0); err != nil {
		t.Errorf("SleepFor(0) error = %v, want nil", err)
	}
}
