// Package visibility computes the composite discoverability score used to
// rank vendors in marketplace search.
package visibility

import (
	"math"
	"sort"
)

// Sub-score weights. They sum to 1 so a perfect vendor scores exactly 100.
const (
	weightImpressions = 0.25
	weightEngagement  = 0.25
	weightConversion  = 0.30
	weightQuality     = 0.20
)

// Inputs are the four 0-100 sub-scores feeding the composite. Values outside
// the range are clamped, not rejected.
type Inputs struct {
	Impressions float64 `json:"impressions"`
	Engagement  float64 `json:"engagement"`
	Conversion  float64 `json:"conversion"`
	Quality     float64 `json:"quality"`
}

// Score blends the sub-scores into a single 0-100 metric, rounded to two
// decimals.
func Score(in Inputs) float64 {
	total := clamp(in.Impressions)*weightImpressions +
		clamp(in.Engagement)*weightEngagement +
		clamp(in.Conversion)*weightConversion +
		clamp(in.Quality)*weightQuality
	return math.Round(total*100) / 100
}

// VendorScore pairs a vendor id with its computed score for ranking.
type VendorScore struct {
	VendorID string  `json:"vendor_id"`
	Score    float64 `json:"score"`
}

// Rank computes and orders vendor scores descending, breaking ties by
// vendor id so the ordering is stable across runs.
func Rank(vendors map[string]Inputs) []VendorScore {
	out := make([]VendorScore, 0, len(vendors))
	for id, in := range vendors {
		out = append(out, VendorScore{VendorID: id, Score: Score(in)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].VendorID < out[j].VendorID
	})
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
