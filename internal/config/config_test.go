package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT", "WEATHER_ENGINE", "THRESHOLDS_PATH",
	"HTTP_TIMEOUT", "FETCH_ATTEMPT_TIMEOUT", "FETCH_TOTAL_DEADLINE", "SERIES_DEADLINE",
	"RESULT_TTL", "STORE_PRUNE_INTERVAL", "FETCH_CONCURRENCY", "UPSTREAM_RATE_LIMIT",
	"RESULT_STORE", "REDIS_ADDR", "STORE_MAX_ENTRIES", "SYNTHETIC_SEED",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, EngineSynthetic, cfg.Engine)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 20*time.Second, cfg.FetchAttemptTimeout)
	assert.Equal(t, time.Minute, cfg.FetchTotalDeadline)
	assert.Equal(t, 5*time.Minute, cfg.SeriesDeadline)
	assert.Equal(t, 24*time.Hour, cfg.ResultTTL)
	assert.Equal(t, 8, cfg.FetchConcurrency)
	assert.Zero(t, cfg.UpstreamRateLimit)
	assert.Equal(t, StoreMemory, cfg.ResultStore)
	assert.Equal(t, 1000, cfg.StoreMaxEntries)
	assert.Equal(t, uint64(1234), cfg.SyntheticSeed)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("WEATHER_ENGINE", "Earthdata")
	t.Setenv("FETCH_TOTAL_DEADLINE", "90s")
	t.Setenv("FETCH_CONCURRENCY", "4")
	t.Setenv("UPSTREAM_RATE_LIMIT", "2.5")
	t.Setenv("RESULT_STORE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, EngineEarthdata, cfg.Engine)
	assert.Equal(t, 90*time.Second, cfg.FetchTotalDeadline)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, 2.5, cfg.UpstreamRateLimit)
	assert.Equal(t, StoreRedis, cfg.ResultStore)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}

func TestLoad_BadInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_CONCURRENCY", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.FetchConcurrency)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"engine":     {"WEATHER_ENGINE", "ouija"},
		"store":      {"RESULT_STORE", "floppy"},
		"duration":   {"SERIES_DEADLINE", "soon"},
		"rate limit": {"UPSTREAM_RATE_LIMIT", "-1"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.ErrorContains(t, err, kv[0])
		})
	}
}
