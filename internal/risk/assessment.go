// Package risk scores vendor applications against a fixed checklist of
// weighted conditions. Scoring is deterministic and side-effect free:
// missing fields fail their condition, they never produce an error.
package risk

import (
	"strings"
	"time"

	"github.com/vendorlane/pulse/pkg/models"
)

// Level buckets an overall score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Category groups related factors for recommendation templates.
type Category string

const (
	CategoryOnlinePresence Category = "online_presence"
	CategoryCompliance     Category = "compliance"
	CategoryExperience     Category = "experience"
	CategoryOperations     Category = "operations"
	CategoryCatalog        Category = "catalog"
)

// maxScore caps the summed factor weights.
const maxScore = 100

// Thresholds below which an application is considered small or demanding.
const (
	minCompanyAge        = 365 * 24 * time.Hour
	minTeamSize          = 3
	maxMinimumOrderCents = 500000 // $5,000
)

// Factor is one fired checklist condition with its severity weight.
type Factor struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Weight      int      `json:"weight"`
}

// Assessment is the bounded, explainable result of evaluating a snapshot.
type Assessment struct {
	Score           int      `json:"score"`
	Level           Level    `json:"level"`
	Factors         []Factor `json:"factors"`
	Recommendations []string `json:"recommendations"`
}

// Evaluate scores the application snapshot as of now.
func Evaluate(app *models.Application) Assessment {
	return EvaluateAt(app, time.Now())
}

// EvaluateAt scores the application snapshot as of the given time. The time
// only feeds the company-age condition; everything else is a pure function
// of the snapshot.
func EvaluateAt(app *models.Application, now time.Time) Assessment {
	var factors []Factor

	fire := func(id string, category Category, weight int, description string) {
		factors = append(factors, Factor{
			ID:          id,
			Category:    category,
			Description: description,
			Weight:      weight,
		})
	}

	if strings.TrimSpace(app.Website) == "" {
		fire("missing_website", CategoryOnlinePresence, 25, "no company website provided")
	}
	if app.FoundedAt.IsZero() || now.Sub(app.FoundedAt) < minCompanyAge {
		fire("young_company", CategoryExperience, 15, "company is less than one year old")
	}
	if len(app.CompanyValues) == 0 {
		fire("missing_values", CategoryExperience, 5, "no company values stated")
	}
	if len(app.Certifications) == 0 {
		fire("missing_certifications", CategoryCompliance, 10, "no certifications listed")
	}
	if app.TeamSize < minTeamSize {
		fire("small_team", CategoryOperations, 10, "team smaller than three people")
	}
	if app.MinimumOrderValue > maxMinimumOrderCents {
		fire("high_minimum_order", CategoryOperations, 10, "minimum order value above $5,000")
	}
	if !app.HasInsuranceCertificate {
		fire("missing_insurance", CategoryCompliance, 30, "no insurance certificate on file")
	}
	if !app.HasBusinessLicense {
		fire("missing_license", CategoryCompliance, 20, "no business license on file")
	}
	if len(app.Categories) == 0 {
		fire("missing_categories", CategoryCatalog, 10, "no service categories selected")
	}

	score := 0
	for _, f := range factors {
		score += f.Weight
	}
	if score > maxScore {
		score = maxScore
	}

	return Assessment{
		Score:           score,
		Level:           levelFor(score),
		Factors:         factors,
		Recommendations: recommendations(factors),
	}
}

func levelFor(score int) Level {
	switch {
	case score >= 50:
		return LevelCritical
	case score >= 30:
		return LevelHigh
	case score >= 15:
		return LevelMedium
	default:
		return LevelLow
	}
}

// recommendations emits one fixed template per category that fired, in a
// stable order.
func recommendations(factors []Factor) []string {
	fired := map[Category]bool{}
	for _, f := range factors {
		fired[f.Category] = true
	}

	templates := []struct {
		category Category
		text     string
	}{
		{CategoryCompliance, "Request missing compliance documents before approving this vendor."},
		{CategoryOnlinePresence, "Verify the business through alternative channels; no web presence was provided."},
		{CategoryExperience, "Consider a probationary period for this newly established company."},
		{CategoryOperations, "Review operational capacity and order terms with the applicant."},
		{CategoryCatalog, "Ask the applicant to categorize their services before listing."},
	}

	var out []string
	for _, tmpl := range templates {
		if fired[tmpl.category] {
			out = append(out, tmpl.text)
		}
	}
	return out
}
