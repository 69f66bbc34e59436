// Package review tracks vendor application review deadlines and flags
// reviews that have breached their SLA.
package review

import (
	"time"

	"github.com/vendorlane/pulse/pkg/models"
)

// Review windows per priority.
const (
	WindowStandard   = 72 * time.Hour
	WindowExpedited  = 24 * time.Hour
	WindowEnterprise = 12 * time.Hour
)

// SLAStatus classifies how much of the review window remains.
type SLAStatus string

const (
	SLAOnTrack SLAStatus = "on_track"
	SLAAtRisk  SLAStatus = "at_risk"
	SLAOverdue SLAStatus = "overdue"
)

// atRiskFraction is the remaining share of the window below which a review
// is flagged at-risk.
const atRiskFraction = 0.25

// Window returns the review window for a priority. Unknown priorities get
// the standard window.
func Window(priority models.ReviewPriority) time.Duration {
	switch priority {
	case models.PriorityExpedited:
		return WindowExpedited
	case models.PriorityEnterprise:
		return WindowEnterprise
	default:
		return WindowStandard
	}
}

// Deadline computes the timestamp by which the review must complete.
func Deadline(submittedAt time.Time, priority models.ReviewPriority) time.Time {
	return submittedAt.Add(Window(priority))
}

// Status classifies a review deadline relative to now. The at-risk band is
// the final quarter of the priority's window.
func Status(now, deadline time.Time, priority models.ReviewPriority) SLAStatus {
	if !now.Before(deadline) {
		return SLAOverdue
	}
	remaining := deadline.Sub(now)
	if float64(remaining) <= float64(Window(priority))*atRiskFraction {
		return SLAAtRisk
	}
	return SLAOnTrack
}

// StatusFor classifies an application's review SLA as of now.
func StatusFor(app *models.Application, now time.Time) SLAStatus {
	return Status(now, Deadline(app.SubmittedAt, app.Priority), app.Priority)
}
