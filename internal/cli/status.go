package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status <test>",
	Short: "Show a test's progress toward its sample target",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		ctx := context.Background()

		test, err := findTest(ctx, eng, args[0])
		if err != nil {
			return err
		}

		view, err := eng.GetTestStatus(ctx, test.ID)
		if err != nil {
			return fmt.Errorf("failed to get test status: %w", err)
		}

		fmt.Printf("TEST: %s (%s)\n", view.Name, view.TestID)
		fmt.Printf("STATUS: %s\n", view.Status)
		fmt.Printf("VARIANTS: %d\n", view.Variants)
		fmt.Printf("SAMPLES: %s\n", formatNumber(view.TotalSamples))
		fmt.Printf("PROGRESS: %.1f%%\n", view.Progress)
		if view.TimeRemaining > 0 {
			fmt.Printf("TIME REMAINING: %s\n", view.TimeRemaining.Round(time.Second))
		}
		return nil
	})
}
