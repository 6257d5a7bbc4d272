package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("SONAR_URI", "https://example.sonar.software")
	t.Setenv("SONAR_USERNAME", "admin")
	t.Setenv("SONAR_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Sonar.Timeout)
	assert.Equal(t, 10, cfg.Import.Concurrency)
	assert.Equal(t, "log_output", cfg.Import.LogDir)
	assert.Equal(t, 30*24*time.Hour, cfg.Address.CacheTTL)
	assert.Equal(t, 10000, cfg.Address.CacheCapacity)
	assert.Equal(t, 0, cfg.Server.MetricsPort)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("IMPORT_CONCURRENCY", "20")
	t.Setenv("HTTP_TIMEOUT_SEC", "5")
	t.Setenv("ADDRESS_CACHE_TTL_DAYS", "7")
	t.Setenv("DEFAULT_CITY", "Springfield")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Import.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Sonar.Timeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Address.CacheTTL)
	assert.Equal(t, "Springfield", cfg.Address.DefaultCity)
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("SONAR_URI", "https://example.sonar.software")
	t.Setenv("SONAR_USERNAME", "")
	t.Setenv("SONAR_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SONAR_USERNAME")
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	setRequired(t)
	t.Setenv("IMPORT_CONCURRENCY", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMPORT_CONCURRENCY")
}
