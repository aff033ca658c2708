package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the retention sweep",
	Long: `Delete terminal tests past the retention horizon along with their
results, stale assignments and old response references.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		if err := eng.Cleanup(context.Background()); err != nil {
			return fmt.Errorf("retention sweep failed: %w", err)
		}
		fmt.Println("Retention sweep complete.")
		return nil
	})
}
