package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <test>",
	Short: "Export raw event data",
	Long: `Export a test's raw event logs in CSV or JSON format.

Examples:
  splitkit export greeting --format csv > greeting-events.csv
  splitkit export greeting --format json > greeting-events.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withEngine(func(eng *engine.Engine) error {
		ctx := context.Background()

		test, err := findTest(ctx, eng, args[0])
		if err != nil {
			return err
		}

		results, err := eng.Results(ctx, test.ID)
		if err != nil {
			return fmt.Errorf("failed to get results: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(results)
		}
		return exportJSON(results)
	})
}

func exportCSV(results []store.VariantResult) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "variant", "event_type", "user_id", "rating", "conversion_type"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, result := range results {
		for _, e := range result.Events {
			row := []string{
				strconv.FormatInt(e.Timestamp.Unix(), 10),
				result.VariantID,
				string(e.Type),
				e.UserID,
				strconv.Itoa(e.Rating),
				e.ConversionType,
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	return nil
}

type jsonExport struct {
	Events []jsonEvent `json:"events"`
}

type jsonEvent struct {
	Timestamp      int64  `json:"timestamp"`
	Variant        string `json:"variant"`
	EventType      string `json:"event_type"`
	UserID         string `json:"user_id,omitempty"`
	Rating         int    `json:"rating,omitempty"`
	ConversionType string `json:"conversion_type,omitempty"`
}

func exportJSON(results []store.VariantResult) error {
	var export jsonExport
	for _, result := range results {
		for _, e := range result.Events {
			export.Events = append(export.Events, jsonEvent{
				Timestamp:      e.Timestamp.Unix(),
				Variant:        result.VariantID,
				EventType:      string(e.Type),
				UserID:         e.UserID,
				Rating:         e.Rating,
				ConversionType: e.ConversionType,
			})
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
