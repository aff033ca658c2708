package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are sourced from SPLITKIT_* environment variables, with
// sensible defaults where appropriate. A .env file is loaded by main.
type Config struct {
	// DBPath is the database file (sqlite) or directory (badger).
	DBPath string

	// Backend selects the gateway implementation: sqlite, badger or
	// memory.
	Backend string

	Port int

	// AdminToken guards the test-management endpoints. If empty, a
	// random token is generated at startup and printed.
	AdminToken string

	MaxConcurrentTests int

	// RetentionDays bounds how long terminal tests, assignments and
	// event logs are kept before the retention sweep removes them.
	RetentionDays int

	// AnalysisMinAge is how old a test must be before the periodic
	// analyzer considers it.
	AnalysisMinAge time.Duration

	// AnalysisInterval is how often the background analyzer runs.
	AnalysisInterval time.Duration
}

// Load reads configuration from environment variables and applies
// defaults.
func Load() *Config {
	cfg := &Config{
		DBPath:             getenv("SPLITKIT_DB_PATH", "./splitkit.db"),
		Backend:            getenv("SPLITKIT_BACKEND", "sqlite"),
		Port:               8080,
		AdminToken:         os.Getenv("SPLITKIT_ADMIN_TOKEN"),
		MaxConcurrentTests: 5,
		RetentionDays:      30,
		AnalysisMinAge:     24 * time.Hour,
		AnalysisInterval:   5 * time.Minute,
	}

	if v := os.Getenv("SPLITKIT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := os.Getenv("SPLITKIT_MAX_CONCURRENT_TESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentTests = n
		}
	}
	if v := os.Getenv("SPLITKIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("SPLITKIT_ANALYSIS_MIN_AGE_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours >= 0 {
			cfg.AnalysisMinAge = time.Duration(hours) * time.Hour
		}
	}
	if v := os.Getenv("SPLITKIT_ANALYSIS_INTERVAL_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			cfg.AnalysisInterval = time.Duration(minutes) * time.Minute
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
