package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongodb", cfg.Store.Type)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50, cfg.RateLimit.Threshold)
	assert.Equal(t, 0.24, cfg.RateLimit.CostPer1000Requests)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.FlushInterval)
	assert.Equal(t, "", cfg.Vault.KeyHex)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_TYPE", "postgresql")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RATE_LIMIT_THRESHOLD", "75")
	t.Setenv("COST_PER_1000_REQUESTS", "0.5")
	t.Setenv("FLUSH_INTERVAL", "30s")
	t.Setenv("VAULT_KEY_HEX", "deadbeef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgresql", cfg.Store.Type)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 75, cfg.RateLimit.Threshold)
	assert.Equal(t, 0.5, cfg.RateLimit.CostPer1000Requests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.FlushInterval)
	assert.Equal(t, "deadbeef", cfg.Vault.KeyHex)
}

func TestGetEnvInt_InvalidValueFallsBackToDefault(t *testing.T) {
	t.Setenv("RATE_LIMIT_THRESHOLD", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.RateLimit.Threshold)
}
