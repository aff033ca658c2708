package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath  string
	backend string
)

var rootCmd = &cobra.Command{
	Use:   "splitkit",
	Short: "SplitKit - an embedded A/B experimentation engine for generated responses",
	Long: `SplitKit runs controlled experiments over response variants: it buckets
users deterministically, ingests feedback and playback events, and calls
winners with a two-proportion z-test. Single Go binary, embedded storage.

Running without a subcommand starts the server (same as 'splitkit serve').`,
	RunE: runServe, // Default action is to start the server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("SPLITKIT_DB_PATH", "./splitkit.db"), "database path (file for sqlite, directory for badger)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", getEnvOrDefault("SPLITKIT_BACKEND", "sqlite"), "storage backend: sqlite, badger or memory")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
