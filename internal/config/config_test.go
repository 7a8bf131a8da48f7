package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// A named config file that does not exist is an error; defaults-only load
	// goes through the search path.
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.Server.Address())
	assert.Equal(t, "./data/streamsieve.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "*/15 * * * *", cfg.Health.Cron)
	assert.Equal(t, 5, cfg.Health.BatchSize)
	assert.Equal(t, 5, cfg.Health.FailureThreshold)
	assert.Equal(t, 2*time.Hour, cfg.Health.Cooldown)
	assert.Equal(t, 280*time.Second, cfg.Health.CronBudget())
	assert.Equal(t, 15*time.Second, cfg.Search.InteractiveDeadline)
	assert.Equal(t, 8, cfg.Search.FastTierSize)
	assert.Equal(t, 5, cfg.Search.SlowTierSize)
	assert.InDelta(t, 0.6, cfg.Search.RelevanceThreshold, 0.001)
	assert.Empty(t, cfg.Solver.URL)
	assert.Equal(t, "https://v3-cinemeta.strem.io", cfg.Metadata.CinemetaURL)
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
health:
  batch_size: 3
solver:
  url: http://solver:8191
`), 0o640))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Health.BatchSize)
	assert.Equal(t, "http://solver:8191", cfg.Solver.URL)
	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STREAMSIEVE_SERVER_PORT", "9090")
	t.Setenv("SOLVER_URL", "http://legacy-solver:8191")
	t.Setenv("MAX_CRON_TIMEOUT_MS", "60000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://legacy-solver:8191", cfg.Solver.URL)
	assert.Equal(t, time.Minute, cfg.Health.CronBudget())
}

func TestCronBudgetFallback(t *testing.T) {
	c := HealthConfig{}
	assert.Equal(t, 280*time.Second, c.CronBudget())

	c.MaxCronTimeoutMS = 1000
	assert.Equal(t, time.Second, c.CronBudget())
}
