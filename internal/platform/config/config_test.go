package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 1.0, cfg.Privacy.DefaultEpsilon)
	assert.Equal(t, 1e-6, cfg.Privacy.DefaultDelta)
	assert.Equal(t, 365*24*time.Hour, cfg.Privacy.BudgetValidity)
	assert.True(t, cfg.Privacy.AutoRenew)
	assert.Equal(t, 3, cfg.Privacy.MaxQueryRetries)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "basic", cfg.Privacy.Composition)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PRIVACY_LEDGER_BACKEND", BackendRedis)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PRIVACY_DEFAULT_EPSILON", "2.5")
	t.Setenv("PRIVACY_AUTO_RENEW", "false")
	t.Setenv("PRIVACY_BUDGET_VALIDITY", "720h")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Ledger.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2.5, cfg.Privacy.DefaultEpsilon)
	assert.False(t, cfg.Privacy.AutoRenew)
	assert.Equal(t, 720*time.Hour, cfg.Privacy.BudgetValidity)
}

func TestFromEnv_InvalidValuesFail(t *testing.T) {
	t.Run("unparseable number", func(t *testing.T) {
		t.Setenv("PRIVACY_DEFAULT_EPSILON", "lots")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PRIVACY_DEFAULT_EPSILON")
	})

	t.Run("postgres backend without url", func(t *testing.T) {
		t.Setenv("PRIVACY_LEDGER_BACKEND", BackendPostgres)
		t.Setenv("DATABASE_URL", "")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("PRIVACY_LEDGER_BACKEND", "etcd")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		t.Setenv("PRIVACY_CONFIDENCE_LEVEL", "1.5")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("unknown composition", func(t *testing.T) {
		t.Setenv("PRIVACY_COMPOSITION", "renyi")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PRIVACY_COMPOSITION")
	})

	t.Run("advanced composition needs delta prime", func(t *testing.T) {
		t.Setenv("PRIVACY_COMPOSITION", "advanced")
		t.Setenv("PRIVACY_COMPOSITION_DELTA_PRIME", "0")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("delta prime above the delta budget", func(t *testing.T) {
		t.Setenv("PRIVACY_COMPOSITION", "advanced")
		t.Setenv("PRIVACY_DEFAULT_DELTA", "1e-6")
		t.Setenv("PRIVACY_COMPOSITION_DELTA_PRIME", "2e-6")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not exceed PRIVACY_DEFAULT_DELTA")
	})
}
