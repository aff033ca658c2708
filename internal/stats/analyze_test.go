package stats_test

import (
	"testing"

	"github.com/splitkit/splitkit/internal/stats"
	"github.com/splitkit/splitkit/internal/store"
)

func twoVariantTest() *store.Test {
	return &store.Test{
		ID:   "t1",
		Name: "greeting",
		Variants: []store.Variant{
			{ID: "variant_0", Name: "Control"},
			{ID: "variant_1", Name: "Challenger"},
		},
		MinSampleSize:   100,
		ConfidenceLevel: 0.95,
	}
}

func result(variantID string, samples, conversions int) store.VariantResult {
	return store.VariantResult{
		TestID:    "t1",
		VariantID: variantID,
		Samples:   samples,
		Metrics:   store.Metrics{Exposures: samples, Conversions: conversions},
	}
}

func TestAnalyze_ClearWinner(t *testing.T) {
	// Control converts at 10%, challenger at 20%.
	analysis := stats.Analyze(twoVariantTest(), []store.VariantResult{
		result("variant_0", 1000, 100),
		result("variant_1", 1000, 200),
	})

	if analysis.TotalSamples != 2000 {
		t.Fatalf("expected 2000 samples, got %d", analysis.TotalSamples)
	}
	if r := analysis.Variants[0].ConversionRate; r < 0.09 || r > 0.11 {
		t.Errorf("control rate %f not ~0.10", r)
	}
	if r := analysis.Variants[1].ConversionRate; r < 0.19 || r > 0.21 {
		t.Errorf("challenger rate %f not ~0.20", r)
	}

	if !analysis.Significance.Significant {
		t.Error("expected a significant result")
	}
	if analysis.Winner.VariantID != "variant_1" {
		t.Errorf("expected variant_1 to win, got %q", analysis.Winner.VariantID)
	}
	if analysis.Winner.ImprovementPercent < 95 || analysis.Winner.ImprovementPercent > 105 {
		t.Errorf("expected ~100%% improvement, got %f", analysis.Winner.ImprovementPercent)
	}
	if analysis.Recommendation.Action != stats.ActionPromoteWinner {
		t.Errorf("expected promote_winner, got %s", analysis.Recommendation.Action)
	}
}

func TestAnalyze_NoSignificantDifference(t *testing.T) {
	analysis := stats.Analyze(twoVariantTest(), []store.VariantResult{
		result("variant_0", 1000, 50),
		result("variant_1", 1000, 52),
	})

	if analysis.Significance.Significant {
		t.Error("expected no significance for near-equal rates")
	}
	if analysis.Winner.VariantID != "" {
		t.Errorf("expected no winner, got %q", analysis.Winner.VariantID)
	}
	if analysis.Recommendation.Action != stats.ActionContinueOrStop {
		t.Errorf("expected continue_or_stop, got %s", analysis.Recommendation.Action)
	}
}

func TestAnalyze_InsufficientSamples(t *testing.T) {
	test := twoVariantTest()
	test.MinSampleSize = 500

	analysis := stats.Analyze(test, []store.VariantResult{
		result("variant_0", 100, 10),
		result("variant_1", 100, 30),
	})

	// Sample gate fires before anything else, even with a big gap.
	if analysis.Recommendation.Action != stats.ActionContinue {
		t.Errorf("expected continue, got %s", analysis.Recommendation.Action)
	}
}

func TestAnalyze_SmallImprovementNotPromoted(t *testing.T) {
	// A statistically solid but tiny lift should not trigger promotion.
	analysis := stats.Analyze(twoVariantTest(), []store.VariantResult{
		result("variant_0", 100000, 30000),
		result("variant_1", 100000, 31000),
	})

	if !analysis.Significance.Significant {
		t.Fatal("expected significance at this sample size")
	}
	if analysis.Winner.ImprovementPercent > 10 {
		t.Fatalf("improvement %f should be below the promotion threshold", analysis.Winner.ImprovementPercent)
	}
	if analysis.Recommendation.Action != stats.ActionContinue {
		t.Errorf("expected continue, got %s", analysis.Recommendation.Action)
	}
}

func TestAnalyze_NoTraffic(t *testing.T) {
	analysis := stats.Analyze(twoVariantTest(), []store.VariantResult{
		result("variant_0", 0, 0),
		result("variant_1", 0, 0),
	})

	if analysis.Significance.Significant {
		t.Error("expected no significance without traffic")
	}
	if analysis.Significance.PValue != 1 {
		t.Errorf("expected p=1, got %f", analysis.Significance.PValue)
	}
	if analysis.Recommendation.Action != stats.ActionContinue {
		t.Errorf("expected continue (sample gate), got %s", analysis.Recommendation.Action)
	}
}

func TestAnalyze_ControlLeading(t *testing.T) {
	// The control outperforming the challenger is also a significant
	// outcome; the winner is the control itself.
	analysis := stats.Analyze(twoVariantTest(), []store.VariantResult{
		result("variant_0", 1000, 200),
		result("variant_1", 1000, 100),
	})

	if !analysis.Significance.Significant {
		t.Fatal("expected significance")
	}
	if analysis.Winner.VariantID != "variant_0" {
		t.Errorf("expected the control to win, got %q", analysis.Winner.VariantID)
	}
	if analysis.Winner.ImprovementPercent < 95 {
		t.Errorf("expected ~100%% improvement over the challenger, got %f", analysis.Winner.ImprovementPercent)
	}
}

func TestAnalyze_MissingResultsAreZeroValued(t *testing.T) {
	// Results may be missing for variants without traffic yet.
	analysis := stats.Analyze(twoVariantTest(), []store.VariantResult{
		result("variant_0", 500, 50),
	})

	if len(analysis.Variants) != 2 {
		t.Fatalf("expected 2 variant analyses, got %d", len(analysis.Variants))
	}
	if analysis.Variants[1].Samples != 0 {
		t.Errorf("expected zero samples for missing variant, got %d", analysis.Variants[1].Samples)
	}
	if analysis.Significance.Significant {
		t.Error("an empty arm must never be significant")
	}
}
