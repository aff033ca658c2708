package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tests",
	Long:  `List all A/B tests with their status and sample counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		ctx := context.Background()

		tests, err := eng.ListTests(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tests: %w", err)
		}

		if len(tests) == 0 {
			fmt.Println("No tests yet.")
			fmt.Println()
			fmt.Println("Create one with:")
			fmt.Println("  splitkit create greeting --type greeting --variants \"Formal,Casual\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tVARIANTS\tSAMPLES\tCREATED")

		for _, test := range tests {
			results, err := eng.Results(ctx, test.ID)
			if err != nil {
				return fmt.Errorf("failed to get results for test %s: %w", test.ID, err)
			}

			samples := 0
			for _, r := range results {
				samples += r.Samples
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				shortID(test.ID),
				test.Name,
				test.ResponseType,
				strings.ToUpper(string(test.Status)),
				len(test.Variants),
				formatNumber(samples),
				test.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}

// shortID trims a uuid down to its first block for table display.
func shortID(id string) string {
	if idx := strings.Index(id, "-"); idx > 0 {
		return id[:idx]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
