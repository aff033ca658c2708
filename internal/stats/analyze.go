package stats

import (
	"fmt"
	"math"

	"github.com/splitkit/splitkit/internal/store"
)

// Action is the analysis engine's recommendation for a test.
type Action string

const (
	ActionContinue       Action = "continue"
	ActionContinueOrStop Action = "continue_or_stop"
	ActionPromoteWinner  Action = "promote_winner"
)

// Thresholds for promoting a winner.
const (
	promoteMinImprovement = 10.0 // percent
	promoteMinConfidence  = 0.95
)

// Analysis is the derived statistical view of a test. It is computed
// on demand and never stored as a source of truth.
type Analysis struct {
	TestID         string            `json:"test_id"`
	TestName       string            `json:"test_name"`
	Variants       []VariantAnalysis `json:"variants"`
	Significance   Significance      `json:"significance"`
	Winner         Winner            `json:"winner"`
	Recommendation Recommendation    `json:"recommendation"`
	TotalSamples   int               `json:"total_samples"`
}

// VariantAnalysis contains the statistics for a single variant.
type VariantAnalysis struct {
	VariantID      string  `json:"variant_id"`
	Name           string  `json:"name"`
	Samples        int     `json:"samples"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	StandardError  float64 `json:"standard_error"`
	CILower        float64 `json:"ci_lower"`
	CIUpper        float64 `json:"ci_upper"`
}

// Significance reports the two-proportion z-test between the control
// (variant index 0) and the leading challenger.
type Significance struct {
	Significant bool    `json:"significant"`
	Confidence  float64 `json:"confidence"`
	PValue      float64 `json:"p_value"`
	ZScore      float64 `json:"z_score"`
	LiftPercent float64 `json:"lift_percent"`
}

// Winner names the winning variant, when one can be called.
type Winner struct {
	VariantID          string  `json:"variant_id,omitempty"`
	Reason             string  `json:"reason"`
	ImprovementPercent float64 `json:"improvement_percent"`
}

// Recommendation is the first-match policy outcome for a test.
type Recommendation struct {
	Action     Action `json:"action"`
	Reason     string `json:"reason"`
	Confidence string `json:"confidence"`
}

// Analyze computes the full statistical view for a test: per-variant
// rates and intervals, significance of the leading variant against the
// control, a winner when one is supported, and a recommendation.
// results must be ordered like test.Variants (zero-valued entries are
// fine for variants without traffic).
func Analyze(test *store.Test, results []store.VariantResult) *Analysis {
	confidenceLevel := test.ConfidenceLevel
	if confidenceLevel == 0 {
		confidenceLevel = 0.95
	}
	z := ZScore(confidenceLevel)

	resultByVariant := make(map[string]store.VariantResult, len(results))
	for _, r := range results {
		resultByVariant[r.VariantID] = r
	}

	variants := make([]VariantAnalysis, len(test.Variants))
	totalSamples := 0
	leading := 0

	for i, variant := range test.Variants {
		result := resultByVariant[variant.ID] // zero-valued if absent

		rate := 0.0
		se := 0.0
		if result.Samples > 0 {
			rate = float64(result.Metrics.Conversions) / float64(result.Samples)
			se = standardError(rate, result.Samples)
		}
		lower, upper := NormalInterval(result.Metrics.Conversions, result.Samples, z)

		variants[i] = VariantAnalysis{
			VariantID:      variant.ID,
			Name:           variant.Name,
			Samples:        result.Samples,
			Conversions:    result.Metrics.Conversions,
			ConversionRate: rate,
			StandardError:  se,
			CILower:        lower,
			CIUpper:        upper,
		}

		totalSamples += result.Samples
		if rate > variants[leading].ConversionRate {
			leading = i
		}
	}

	analysis := &Analysis{
		TestID:       test.ID,
		TestName:     test.Name,
		Variants:     variants,
		TotalSamples: totalSamples,
	}

	// Compare the control (variant 0) against the leading challenger;
	// when the control itself leads, compare it to the best challenger.
	challenger := leading
	if leading == 0 && len(variants) > 1 {
		challenger = 1
		for i := 2; i < len(variants); i++ {
			if variants[i].ConversionRate > variants[challenger].ConversionRate {
				challenger = i
			}
		}
	}

	control := variants[0]
	other := variants[challenger]

	zScore, pValue := TwoProportionZTest(control.Conversions, control.Samples, other.Conversions, other.Samples)
	confidence := 1 - pValue
	significant := pValue < 1 && confidence >= confidenceLevel

	analysis.Significance = Significance{
		Significant: significant,
		Confidence:  confidence,
		PValue:      pValue,
		ZScore:      zScore,
		LiftPercent: percentChange(other.ConversionRate, control.ConversionRate),
	}

	if significant {
		best := variants[leading]
		baseline := other
		if leading != 0 {
			baseline = control
		}
		analysis.Winner = Winner{
			VariantID:          best.VariantID,
			Reason:             fmt.Sprintf("highest conversion rate at %.1f%% confidence", confidence*100),
			ImprovementPercent: percentChange(best.ConversionRate, baseline.ConversionRate),
		}
	} else {
		analysis.Winner = Winner{Reason: "No statistically significant difference"}
	}

	analysis.Recommendation = recommend(test, analysis)
	return analysis
}

// recommend applies the first-match recommendation policy.
func recommend(test *store.Test, analysis *Analysis) Recommendation {
	confidence := analysis.Significance.Confidence

	if analysis.TotalSamples < test.MinSampleSize {
		return Recommendation{
			Action:     ActionContinue,
			Reason:     fmt.Sprintf("only %d of %d minimum samples collected", analysis.TotalSamples, test.MinSampleSize),
			Confidence: confidenceLabel(confidence),
		}
	}
	if !analysis.Significance.Significant {
		return Recommendation{
			Action:     ActionContinueOrStop,
			Reason:     "no statistically significant difference between variants",
			Confidence: confidenceLabel(confidence),
		}
	}
	if analysis.Winner.ImprovementPercent > promoteMinImprovement && confidence > promoteMinConfidence {
		return Recommendation{
			Action:     ActionPromoteWinner,
			Reason:     fmt.Sprintf("variant %s improves conversion by %.1f%%", analysis.Winner.VariantID, analysis.Winner.ImprovementPercent),
			Confidence: confidenceLabel(confidence),
		}
	}
	return Recommendation{
		Action:     ActionContinue,
		Reason:     "significant but improvement is below the promotion threshold",
		Confidence: confidenceLabel(confidence),
	}
}

func confidenceLabel(confidence float64) string {
	switch {
	case confidence >= 0.99:
		return "very high"
	case confidence >= 0.95:
		return "high"
	case confidence >= 0.90:
		return "moderate"
	default:
		return "low"
	}
}

func standardError(rate float64, samples int) float64 {
	if samples == 0 {
		return 0
	}
	return math.Sqrt(rate * (1 - rate) / float64(samples))
}

func percentChange(rate, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (rate - baseline) / baseline * 100
}
