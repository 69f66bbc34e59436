package risk

import (
	"testing"
	"time"

	"github.com/vendorlane/pulse/pkg/models"
)

// cleanApplication returns a snapshot that fires no factors at the given
// evaluation time.
func cleanApplication(now time.Time) *models.Application {
	return &models.Application{
		CompanyName:             "Willow & Sage Spa Supply",
		Website:                 "https://willowsage.example",
		FoundedAt:               now.Add(-3 * 365 * 24 * time.Hour),
		TeamSize:                12,
		MinimumOrderValue:       25000,
		CompanyValues:           []string{"sustainability"},
		Certifications:          []string{"organic"},
		Categories:              []string{"massage", "skincare"},
		HasInsuranceCertificate: true,
		HasBusinessLicense:      true,
	}
}

func TestEvaluateCleanApplication(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	got := EvaluateAt(cleanApplication(now), now)

	if got.Score != 0 {
		t.Errorf("Score = %d, want 0", got.Score)
	}
	if got.Level != LevelLow {
		t.Errorf("Level = %q, want %q", got.Level, LevelLow)
	}
	if len(got.Factors) != 0 {
		t.Errorf("Factors = %v, want none", got.Factors)
	}
	if len(got.Recommendations) != 0 {
		t.Errorf("Recommendations = %v, want none", got.Recommendations)
	}
}

func TestEvaluateDocumentedCriticalCase(t *testing.T) {
	// No website, no insurance certificate, no business license:
	// 25 + 30 + 20 = 75, which must bucket as critical.
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	app := cleanApplication(now)
	app.Website = ""
	app.HasInsuranceCertificate = false
	app.HasBusinessLicense = false

	got := EvaluateAt(app, now)
	if got.Score != 75 {
		t.Errorf("Score = %d, want 75", got.Score)
	}
	if got.Level != LevelCritical {
		t.Errorf("Level = %q, want %q", got.Level, LevelCritical)
	}
}

func TestEvaluateScoreCappedAt100(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Everything fires: 25+15+5+10+10+10+30+20+10 = 135, capped at 100.
	app := &models.Application{MinimumOrderValue: 600000}

	got := EvaluateAt(app, now)
	if got.Score != 100 {
		t.Errorf("Score = %d, want 100", got.Score)
	}
	if got.Level != LevelCritical {
		t.Errorf("Level = %q, want %q", got.Level, LevelCritical)
	}
	if len(got.Factors) != 9 {
		t.Errorf("fired %d factors, want 9", len(got.Factors))
	}
}

func TestEvaluateMonotonic(t *testing.T) {
	// Adding a failing condition must never decrease the score.
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	app := cleanApplication(now)

	prev := EvaluateAt(app, now).Score
	degrade := []func(){
		func() { app.Website = "" },
		func() { app.Certifications = nil },
		func() { app.TeamSize = 1 },
		func() { app.HasInsuranceCertificate = false },
		func() { app.HasBusinessLicense = false },
		func() { app.Categories = nil },
		func() { app.MinimumOrderValue = 900000 },
		func() { app.FoundedAt = now.Add(-24 * time.Hour) },
		func() { app.CompanyValues = nil },
	}

	for i, step := range degrade {
		step()
		score := EvaluateAt(app, now).Score
		if score < prev {
			t.Fatalf("step %d: score %d < previous %d", i, score, prev)
		}
		if score > 100 {
			t.Fatalf("step %d: score %d exceeds 100", i, score)
		}
		prev = score
	}
}

func TestEvaluateCompanyAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		foundedAt time.Time
		fires     bool
	}{
		{name: "zero founded date fires", foundedAt: time.Time{}, fires: true},
		{name: "six months old fires", foundedAt: now.Add(-180 * 24 * time.Hour), fires: true},
		{name: "two years old does not fire", foundedAt: now.Add(-2 * 365 * 24 * time.Hour), fires: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := cleanApplication(now)
			app.FoundedAt = tt.foundedAt
			got := EvaluateAt(app, now)
			fired := false
			for _, f := range got.Factors {
				if f.ID == "young_company" {
					fired = true
				}
			}
			if fired != tt.fires {
				t.Errorf("young_company fired = %v, want %v", fired, tt.fires)
			}
		})
	}
}

func TestLevelBuckets(t *testing.T) {
	tests := []struct {
		score    int
		expected Level
	}{
		{0, LevelLow},
		{14, LevelLow},
		{15, LevelMedium},
		{29, LevelMedium},
		{30, LevelHigh},
		{49, LevelHigh},
		{50, LevelCritical},
		{100, LevelCritical},
	}
	for _, tt := range tests {
		if got := levelFor(tt.score); got != tt.expected {
			t.Errorf("levelFor(%d) = %q, want %q", tt.score, got, tt.expected)
		}
	}
}

func TestRecommendationsKeyedOffCategories(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	app := cleanApplication(now)
	app.HasBusinessLicense = false

	got := EvaluateAt(app, now)
	if len(got.Recommendations) != 1 {
		t.Fatalf("Recommendations = %v, want exactly one", got.Recommendations)
	}
	if got.Recommendations[0] != "Request missing compliance documents before approving this vendor." {
		t.Errorf("unexpected recommendation %q", got.Recommendations[0])
	}

	// A second factor in the same category must not duplicate the template.
	app.HasInsuranceCertificate = false
	got = EvaluateAt(app, now)
	if len(got.Recommendations) != 1 {
		t.Errorf("Recommendations = %v, want exactly one", got.Recommendations)
	}
}
