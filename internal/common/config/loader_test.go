// internal/common/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	t.Setenv("TEST_DB_USER", "followup")
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: followups
    user: ${TEST_DB_USER}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "followup", cfg.Database.Postgres.User)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, 250, cfg.Quota.Limit)
	assert.Equal(t, 200, cfg.Quota.WarningThreshold)
	assert.Equal(t, 180, cfg.Quota.TargetFloor)
	assert.Equal(t, 20, cfg.Quota.UnusedPassCap)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 5*time.Minute, GetDuration(cfg.Scheduler.ProcessInterval))
	assert.Equal(t, 24*time.Hour, GetDuration(cfg.Scheduler.DeadSweepInterval))
	assert.Equal(t, 10*time.Second, GetDuration(cfg.Strategy.GenerationTimeout))
	assert.Equal(t, 0.75, cfg.Strategy.FreeFormMinConfidence)
	assert.Equal(t, 9, cfg.Decision.BusinessHoursStart)
	assert.Equal(t, 21, cfg.Decision.BusinessHoursEnd)
	assert.Equal(t, "http", cfg.AI.Provider)
	assert.Equal(t, "v19.0", cfg.WhatsApp.APIVersion)
}

func TestLoadFromFile_RejectsInvertedQuotaThresholds(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: followups
    user: followup
quota:
  limit: 100
  warning_threshold: 200
  target_floor: 180
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota thresholds")
}

func TestLoadFromFile_RequiresPostgresHost(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    database: followups
    user: followup
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.postgres.host")
}

func TestDays(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, Days(7))
}
