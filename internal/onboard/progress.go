// Package onboard computes vendor onboarding progress from a step checklist.
package onboard

import "math"

// Step is one item in a vendor's onboarding checklist.
type Step struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Required bool   `json:"required"`
	Complete bool   `json:"complete"`
}

// Progress summarizes how far through onboarding a vendor is.
type Progress struct {
	// Percent is completed required steps over total required steps,
	// rounded to the nearest whole number. 100 when there are no required
	// steps.
	Percent int `json:"percent"`
	// Complete is true once every required step is done.
	Complete bool `json:"complete"`
	// CompletedRequired and TotalRequired are the raw counts behind Percent.
	CompletedRequired int `json:"completed_required"`
	TotalRequired     int `json:"total_required"`
	// NextStep is the first incomplete required step, nil when Complete.
	NextStep *Step `json:"next_step,omitempty"`
}

// Calculate derives onboarding progress from the step list. Optional steps
// never gate completion or the percentage.
func Calculate(steps []Step) Progress {
	p := Progress{Complete: true}

	for i := range steps {
		step := steps[i]
		if !step.Required {
			continue
		}
		p.TotalRequired++
		if step.Complete {
			p.CompletedRequired++
			continue
		}
		if p.Complete {
			p.Complete = false
			next := step
			p.NextStep = &next
		}
	}

	if p.TotalRequired == 0 {
		p.Percent = 100
		return p
	}
	p.Percent = int(math.Round(float64(p.CompletedRequired) / float64(p.TotalRequired) * 100))
	return p
}

// DefaultSteps returns the standard vendor onboarding checklist, all
// incomplete.
func DefaultSteps() []Step {
	return []Step{
		{ID: "profile", Title: "Complete business profile", Required: true},
		{ID: "catalog", Title: "Add your first service category", Required: true},
		{ID: "compliance", Title: "Upload insurance and license documents", Required: true},
		{ID: "payout", Title: "Connect a payout account", Required: true},
		{ID: "listing", Title: "Publish your first listing", Required: true},
		{ID: "branding", Title: "Add a logo and cover photo", Required: false},
		{ID: "team", Title: "Invite team members", Required: false},
	}
}

// Apply marks the given step ids complete and returns the updated list.
func Apply(steps []Step, completedIDs ...string) []Step {
	done := make(map[string]bool, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = true
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	for i := range out {
		if done[out[i].ID] {
			out[i].Complete = true
		}
	}
	return out
}
