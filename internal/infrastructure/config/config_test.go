package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
storage:
  database_path: ${TEST_RECEIPT_DB}
matching:
  score_threshold: 80
  date_window_days: 5
decay:
  interval: 24h
  stale_after: 2160h
observability:
  logging:
    level: debug
`
	os.Setenv("TEST_RECEIPT_DB", "expanded.db")
	defer os.Unsetenv("TEST_RECEIPT_DB")

	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "expanded.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 80, cfg.Matching.ScoreThreshold)
	assert.Equal(t, 5, cfg.Matching.DateWindowDays)
	assert.Equal(t, 24*time.Hour, cfg.Decay.Interval)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)

	// Unset fields get defaults
	assert.Equal(t, 5, cfg.Matching.AmbiguityWindow)
	assert.Equal(t, 10, cfg.Matching.CandidateLimit)
	assert.Equal(t, 0.9, cfg.Decay.Factor)
	assert.Equal(t, 0.5, cfg.Decay.ConfidenceMin)
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("RECEIPT_DB_PATH", "test.db")
	os.Setenv("RECEIPT_API_PORT", "9999")
	defer func() {
		os.Unsetenv("RECEIPT_DB_PATH")
		os.Unsetenv("RECEIPT_API_PORT")
	}()

	cfg := LoadFromEnv()
	assert.NotNil(t, cfg)
	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	os.Unsetenv("RECEIPT_DB_PATH")
	os.Unsetenv("RECEIPT_API_PORT")

	cfg := LoadFromEnv()
	assert.NotNil(t, cfg)
	assert.Equal(t, "receipt_match.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 70, cfg.Matching.ScoreThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.Decay.Interval)
}
