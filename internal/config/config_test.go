package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "./splitkit.db", cfg.DBPath)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5, cfg.MaxConcurrentTests)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.AnalysisMinAge)
	assert.Equal(t, 5*time.Minute, cfg.AnalysisInterval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SPLITKIT_DB_PATH", "/data/splitkit")
	t.Setenv("SPLITKIT_BACKEND", "badger")
	t.Setenv("SPLITKIT_PORT", "9090")
	t.Setenv("SPLITKIT_ADMIN_TOKEN", "secret")
	t.Setenv("SPLITKIT_MAX_CONCURRENT_TESTS", "10")
	t.Setenv("SPLITKIT_RETENTION_DAYS", "7")
	t.Setenv("SPLITKIT_ANALYSIS_MIN_AGE_HOURS", "1")
	t.Setenv("SPLITKIT_ANALYSIS_INTERVAL_MINUTES", "15")

	cfg := Load()

	assert.Equal(t, "/data/splitkit", cfg.DBPath)
	assert.Equal(t, "badger", cfg.Backend)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "secret", cfg.AdminToken)
	assert.Equal(t, 10, cfg.MaxConcurrentTests)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, time.Hour, cfg.AnalysisMinAge)
	assert.Equal(t, 15*time.Minute, cfg.AnalysisInterval)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("SPLITKIT_PORT", "not-a-port")
	t.Setenv("SPLITKIT_RETENTION_DAYS", "-5")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30, cfg.RetentionDays)
}
