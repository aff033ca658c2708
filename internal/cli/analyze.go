package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/stats"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [test]",
	Short: "Run statistical analysis",
	Long: `Run the significance analysis. With a test argument, analyze that test
regardless of its age; without one, analyze every active test the same
way the background analyzer does (tests past their end date get
stopped).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		ctx := context.Background()

		if len(args) == 1 {
			test, err := findTest(ctx, eng, args[0])
			if err != nil {
				return err
			}
			analysis, err := eng.AnalyzeTest(ctx, test.ID)
			if err != nil {
				return fmt.Errorf("failed to analyze test: %w", err)
			}
			printAnalysis(analysis)
			return nil
		}

		analyses, err := eng.AnalyzeResults(ctx)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		if len(analyses) == 0 {
			fmt.Println("No tests eligible for analysis.")
			return nil
		}
		for i, analysis := range analyses {
			if i > 0 {
				fmt.Println()
			}
			printAnalysis(analysis)
		}
		return nil
	})
}

func printAnalysis(a *stats.Analysis) {
	fmt.Printf("%s (%s): %d samples\n", a.TestName, a.TestID, a.TotalSamples)
	for _, v := range a.Variants {
		fmt.Printf("  %-16s %6d samples  %6d conversions  %s\n",
			v.Name, v.Samples, v.Conversions, formatPercent(v.ConversionRate))
	}
	if a.Significance.Significant {
		fmt.Printf("  significant at %.1f%% (z=%.2f, p=%.4f), winner: %s (%+.1f%%)\n",
			a.Significance.Confidence*100, a.Significance.ZScore, a.Significance.PValue,
			a.Winner.VariantID, a.Winner.ImprovementPercent)
	} else {
		fmt.Printf("  not significant (p=%.4f)\n", a.Significance.PValue)
	}
	fmt.Printf("  recommendation: %s — %s\n", a.Recommendation.Action, a.Recommendation.Reason)
}
