package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variants     string
		responseType string
		metrics      []string
		segments     []string
		devices      []string
		hours        string
		minSamples   int
		confidence   float64
		priority     int
		days         int
		interactive  bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new A/B test",
		Long: `Create a new A/B test over a response type.

Variants are "name" or "name:weight" pairs; weights are relative and
default to 1.

Examples:
  splitkit create greeting --type greeting --variants "Formal,Casual"
  splitkit create tone --type summary --variants "Short:0.2,Long:0.8"
  splitkit create evening --type greeting --variants "A,B" --hours 18-23
  splitkit create onboarding --type help --variants "A,B" --segments new --days 14
  splitkit create greeting --type greeting --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testName := args[0]

			cfg := engine.TestConfig{
				Name:            testName,
				ResponseType:    responseType,
				Metrics:         metrics,
				MinSampleSize:   minSamples,
				ConfidenceLevel: confidence,
				Priority:        priority,
			}

			var err error
			if interactive {
				cfg.Variants, err = promptVariants()
			} else {
				cfg.Variants, err = parseVariants(variants)
			}
			if err != nil {
				return err
			}
			if len(cfg.Variants) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"A,B\"")
			}

			audience := &store.TargetAudience{
				UserSegments: segments,
				DeviceTypes:  devices,
			}
			if hours != "" {
				slot, err := parseTimeSlot(hours)
				if err != nil {
					return err
				}
				audience.TimeSlots = []store.TimeSlot{slot}
			}
			if len(audience.UserSegments) > 0 || len(audience.DeviceTypes) > 0 || len(audience.TimeSlots) > 0 {
				cfg.TargetAudience = audience
			}

			if days > 0 {
				end := time.Now().AddDate(0, 0, days)
				cfg.EndDate = &end
			}

			return withEngine(func(eng *engine.Engine) error {
				test, err := eng.CreateTest(context.Background(), cfg)
				if err != nil {
					return fmt.Errorf("failed to create test: %w", err)
				}

				fmt.Printf("Created test '%s' (%s) with %d variants:\n", test.Name, test.ID, len(test.Variants))
				for _, v := range test.Variants {
					fmt.Printf("  %s: %s (weight %.2f)\n", v.ID, v.Name, v.Weight)
				}
				fmt.Printf("  Response type: %s\n", test.ResponseType)
				fmt.Printf("  Min samples: %d, confidence: %.2f\n", test.MinSampleSize, test.ConfidenceLevel)
				if test.EndDate != nil {
					fmt.Printf("  Ends: %s\n", test.EndDate.Format("2006-01-02"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variants, name or name:weight")
	cmd.Flags().StringVarP(&responseType, "type", "t", "", "response type this test applies to (required)")
	cmd.Flags().StringSliceVarP(&metrics, "metrics", "m", []string{"conversion_rate"}, "metrics to track")
	cmd.Flags().StringSliceVar(&segments, "segments", nil, "restrict to user segments (new, casual, regular, power)")
	cmd.Flags().StringSliceVar(&devices, "devices", nil, "restrict to device types")
	cmd.Flags().StringVar(&hours, "hours", "", "restrict to an hour range, e.g. 9-17")
	cmd.Flags().IntVar(&minSamples, "min-samples", 0, "minimum samples before a winner can be called")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "required confidence level, e.g. 0.95")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority when several tests match a response type")
	cmd.Flags().IntVar(&days, "days", 0, "auto-stop the test after this many days")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "enter variants interactively")
	cmd.MarkFlagRequired("type")

	return cmd
}

// parseVariants parses "A,B" or "A:0.3,B:0.7" into variant configs.
func parseVariants(arg string) ([]engine.VariantConfig, error) {
	if arg == "" {
		return nil, fmt.Errorf("no variants given; use --variants or --interactive")
	}

	parts := strings.Split(arg, ",")
	variants := make([]engine.VariantConfig, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name := part
		weight := 1.0
		if idx := strings.LastIndex(part, ":"); idx >= 0 {
			w, err := strconv.ParseFloat(strings.TrimSpace(part[idx+1:]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid variant weight in %q", part)
			}
			name = strings.TrimSpace(part[:idx])
			weight = w
		}
		variants = append(variants, engine.VariantConfig{Name: name, Weight: weight})
	}
	return variants, nil
}

func parseTimeSlot(arg string) (store.TimeSlot, error) {
	start, end, found := strings.Cut(arg, "-")
	if !found {
		return store.TimeSlot{}, fmt.Errorf("invalid hour range %q (want e.g. 9-17)", arg)
	}
	s, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil || s < 0 || s > 23 {
		return store.TimeSlot{}, fmt.Errorf("invalid start hour in %q", arg)
	}
	e, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil || e < 0 || e > 23 {
		return store.TimeSlot{}, fmt.Errorf("invalid end hour in %q", arg)
	}
	return store.TimeSlot{Start: s, End: e}, nil
}

// promptVariants walks through interactive variant entry.
func promptVariants() ([]engine.VariantConfig, error) {
	var variants []engine.VariantConfig

	for {
		namePrompt := promptui.Prompt{
			Label: fmt.Sprintf("Variant %d name", len(variants)+1),
			Validate: func(input string) error {
				if strings.TrimSpace(input) == "" {
					return fmt.Errorf("name must not be empty")
				}
				return nil
			},
		}
		name, err := namePrompt.Run()
		if err != nil {
			return nil, err
		}

		weightPrompt := promptui.Prompt{
			Label:   "Weight",
			Default: "1",
			Validate: func(input string) error {
				w, err := strconv.ParseFloat(input, 64)
				if err != nil || w < 0 {
					return fmt.Errorf("weight must be a non-negative number")
				}
				return nil
			},
		}
		weightStr, err := weightPrompt.Run()
		if err != nil {
			return nil, err
		}
		weight, _ := strconv.ParseFloat(weightStr, 64)

		variants = append(variants, engine.VariantConfig{Name: strings.TrimSpace(name), Weight: weight})

		if len(variants) >= 2 {
			more := promptui.Select{
				Label: "Add another variant?",
				Items: []string{"done", "add another"},
			}
			_, choice, err := more.Run()
			if err != nil {
				return nil, err
			}
			if choice == "done" {
				break
			}
		}
	}

	return variants, nil
}
