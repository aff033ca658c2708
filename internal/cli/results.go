package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/stats"
)

var resultsCmd = &cobra.Command{
	Use:   "results <test>",
	Short: "Show detailed results for a test",
	Long:  `Show detailed results including conversion rates and confidence intervals.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		ctx := context.Background()

		test, err := findTest(ctx, eng, args[0])
		if err != nil {
			return err
		}

		analysis, err := eng.AnalyzeTest(ctx, test.ID)
		if err != nil {
			return fmt.Errorf("failed to analyze test: %w", err)
		}

		fmt.Printf("TEST: %s (%s)\n", test.Name, test.ID)
		fmt.Printf("TYPE: %s\n", test.ResponseType)
		fmt.Printf("STATUS: %s\n", test.Status)
		fmt.Printf("CREATED: %s\n", test.CreatedAt.Format("2006-01-02"))
		if test.WinningVariant != "" {
			fmt.Printf("WINNER: %s\n", test.WinningVariant)
		}
		fmt.Println()

		confPct := test.ConfidenceLevel * 100
		fmt.Printf("VARIANT           SAMPLES  CONVERSIONS  RATE     %.0f%% CI\n", confPct)
		fmt.Println(strings.Repeat("─", 62))

		for _, v := range analysis.Variants {
			indicator := ""
			if analysis.Winner.VariantID == v.VariantID {
				indicator = " ← WINNER"
			}

			lower, upper := stats.WilsonInterval(v.Conversions, v.Samples, test.ConfidenceLevel)
			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", lower*100, upper*100)
			if v.Samples == 0 {
				ciStr = "N/A"
			}

			name := v.Name
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-7d  %-11d  %-7s  %s%s\n",
				name,
				v.Samples,
				v.Conversions,
				formatPercent(v.ConversionRate),
				ciStr,
				indicator,
			)
		}

		fmt.Println()

		sig := analysis.Significance
		if sig.Significant {
			fmt.Printf("Statistical significance: %.1f%% confident (z=%.2f, p=%.4f)\n",
				sig.Confidence*100, sig.ZScore, sig.PValue)
		} else if sig.Confidence >= 0.90 {
			fmt.Printf("Statistical significance: %.1f%% confident (not yet significant)\n", sig.Confidence*100)
		} else {
			fmt.Println("Statistical significance: Not enough data to determine a winner")
		}

		rec := analysis.Recommendation
		fmt.Printf("Recommendation: %s — %s (confidence: %s)\n", rec.Action, rec.Reason, rec.Confidence)

		return nil
	})
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
