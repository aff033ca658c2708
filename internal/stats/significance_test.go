package stats_test

import (
	"math"
	"testing"

	"github.com/splitkit/splitkit/internal/stats"
)

func TestTwoProportionZTest_ClearDifference(t *testing.T) {
	// Control: 5% conversion (50/1000)
	// Variant: 8% conversion (80/1000)
	z, p := stats.TwoProportionZTest(50, 1000, 80, 1000)

	if math.Abs(z-2.721) > 1e-3 {
		t.Errorf("expected z ~2.721, got %f", z)
	}
	if math.Abs(p-0.0065) > 1e-3 {
		t.Errorf("expected p ~0.0065, got %f", p)
	}
}

func TestTwoProportionZTest_EqualRates(t *testing.T) {
	z, p := stats.TwoProportionZTest(50, 1000, 50, 1000)

	if z != 0 {
		t.Errorf("expected z=0 for equal rates, got %f", z)
	}
	if p != 1 {
		t.Errorf("expected p=1 for equal rates, got %f", p)
	}
}

func TestTwoProportionZTest_ZeroViews(t *testing.T) {
	// An empty arm can never be significant.
	if _, p := stats.TwoProportionZTest(0, 0, 0, 0); p != 1 {
		t.Errorf("expected p=1 for zero views, got %f", p)
	}
	if _, p := stats.TwoProportionZTest(10, 100, 0, 0); p != 1 {
		t.Errorf("expected p=1 when one arm has no views, got %f", p)
	}
}

func TestTwoProportionZTest_DegeneratePooledRate(t *testing.T) {
	// Everyone converts: pooled standard error collapses to zero.
	if _, p := stats.TwoProportionZTest(100, 100, 100, 100); p != 1 {
		t.Errorf("expected p=1 for zero pooled SE, got %f", p)
	}
	if _, p := stats.TwoProportionZTest(0, 100, 0, 100); p != 1 {
		t.Errorf("expected p=1 for zero conversions everywhere, got %f", p)
	}
}

func TestTwoProportionZTest_SmallSample(t *testing.T) {
	// The same rates that are significant at n=1000 should not be at n=20.
	_, p := stats.TwoProportionZTest(1, 20, 2, 20)

	if p < 0.05 {
		t.Errorf("expected no significance for tiny samples, got p=%f", p)
	}
}

func TestNormalCDF(t *testing.T) {
	cases := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1.96, 0.975},
		{-1.96, 0.025},
		{2.576, 0.995},
		{-4, 0.00003},
	}

	for _, tc := range cases {
		got := stats.NormalCDF(tc.x)
		if math.Abs(got-tc.want) > 1e-3 {
			t.Errorf("NormalCDF(%f) = %f, want ~%f", tc.x, got, tc.want)
		}
	}
}

func TestWilsonInterval(t *testing.T) {
	lower, upper := stats.WilsonInterval(50, 1000, 0.95)

	// 5% conversion over 1000 trials: the interval should bracket the
	// observed rate and stay fairly tight.
	if lower >= 0.05 || upper <= 0.05 {
		t.Errorf("interval [%f, %f] does not bracket 0.05", lower, upper)
	}
	if upper-lower > 0.03 {
		t.Errorf("interval [%f, %f] too wide for n=1000", lower, upper)
	}

	// Zero trials yields the empty interval; callers render it as N/A.
	lower, upper = stats.WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("expected [0, 0] for zero trials, got [%f, %f]", lower, upper)
	}
}

func TestNormalInterval(t *testing.T) {
	lower, upper := stats.NormalInterval(100, 1000, 1.96)

	if lower >= 0.1 || upper <= 0.1 {
		t.Errorf("interval [%f, %f] does not bracket 0.10", lower, upper)
	}
	if lower < 0 || upper > 1 {
		t.Errorf("interval [%f, %f] not clamped to [0, 1]", lower, upper)
	}
}

func TestZScore(t *testing.T) {
	cases := []struct {
		confidence float64
		want       float64
	}{
		{0.99, 2.576},
		{0.95, 1.96},
		{0.90, 1.645},
	}

	for _, tc := range cases {
		if got := stats.ZScore(tc.confidence); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ZScore(%f) = %f, want %f", tc.confidence, got, tc.want)
		}
	}

	// Below the lookup table the approximation takes over.
	got := stats.ZScore(0.70)
	if math.Abs(got-1.036) > 0.01 {
		t.Errorf("ZScore(0.70) = %f, want ~1.036", got)
	}
}
