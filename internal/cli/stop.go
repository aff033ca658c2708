package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
)

func init() {
	rootCmd.AddCommand(newStopCmd())
}

func newStopCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "stop <test>",
		Short: "Stop a test without declaring a winner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(eng *engine.Engine) error {
				ctx := context.Background()

				test, err := findTest(ctx, eng, args[0])
				if err != nil {
					return err
				}

				if err := eng.StopTest(ctx, test.ID, reason); err != nil {
					return fmt.Errorf("failed to stop test: %w", err)
				}

				fmt.Printf("Stopped test '%s' (%s)\n", test.Name, reason)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "stopped manually", "why the test is being stopped")

	return cmd
}
