package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	var variantID string

	cmd := &cobra.Command{
		Use:   "winner <test>",
		Short: "Promote a winning variant and complete the test",
		Long: `Promote a winning variant for a test and mark it completed.

The winning configuration is snapshotted per response type, so the
response generator keeps serving it after the test ends.

Example:
  splitkit winner greeting --variant variant_1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(eng *engine.Engine) error {
				ctx := context.Background()

				test, err := findTest(ctx, eng, args[0])
				if err != nil {
					return err
				}

				variant := test.Variant(variantID)
				if variant == nil {
					return fmt.Errorf("invalid variant id %q (test has %d variants)", variantID, len(test.Variants))
				}

				if err := eng.PromoteWinningVariant(ctx, test.ID, variantID); err != nil {
					return fmt.Errorf("failed to promote winner: %w", err)
				}

				fmt.Printf("Promoted winner for test '%s': %s (\"%s\")\n", test.Name, variantID, variant.Name)
				fmt.Println("Test has been marked as completed.")
				fmt.Printf("\nResponses of type %q will now use the winning configuration.\n", test.ResponseType)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variantID, "variant", "v", "", "winning variant id (required)")
	cmd.MarkFlagRequired("variant")

	return cmd
}
