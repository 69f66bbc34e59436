package review

import (
	"testing"
	"time"

	"github.com/vendorlane/pulse/pkg/models"
)

func TestDeadline(t *testing.T) {
	submitted := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		priority models.ReviewPriority
		expected time.Time
	}{
		{models.PriorityStandard, submitted.Add(72 * time.Hour)},
		{models.PriorityExpedited, submitted.Add(24 * time.Hour)},
		{models.PriorityEnterprise, submitted.Add(12 * time.Hour)},
		{models.ReviewPriority("unknown"), submitted.Add(72 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			if got := Deadline(submitted, tt.priority); !got.Equal(tt.expected) {
				t.Errorf("Deadline() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	deadline := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		priority models.ReviewPriority
		expected SLAStatus
	}{
		{
			name:     "well before deadline",
			now:      deadline.Add(-48 * time.Hour),
			priority: models.PriorityStandard,
			expected: SLAOnTrack,
		},
		{
			name:     "inside final quarter of standard window",
			now:      deadline.Add(-17 * time.Hour),
			priority: models.PriorityStandard,
			expected: SLAAtRisk,
		},
		{
			name:     "exactly at deadline",
			now:      deadline,
			priority: models.PriorityStandard,
			expected: SLAOverdue,
		},
		{
			name:     "past deadline",
			now:      deadline.Add(time.Hour),
			priority: models.PriorityStandard,
			expected: SLAOverdue,
		},
		{
			name:     "enterprise at-risk band is three hours",
			now:      deadline.Add(-2 * time.Hour),
			priority: models.PriorityEnterprise,
			expected: SLAAtRisk,
		},
		{
			name:     "enterprise four hours out still on track",
			now:      deadline.Add(-4 * time.Hour),
			priority: models.PriorityEnterprise,
			expected: SLAOnTrack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.now, deadline, tt.priority); got != tt.expected {
				t.Errorf("Status() = %q, want %q", got, tt.expected)
			}
		})
	}
}
