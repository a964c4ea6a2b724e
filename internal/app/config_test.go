package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("RH_USERNAME", "user@example.com")
	t.Setenv("RH_CACHE_DRIVER", "redis")
	t.Setenv("RH_REDIS_TTL", "48h")
	t.Setenv("RH_REQUEST_TIMEOUT", "30")
	t.Setenv("LOG_LEVEL", "")

	cfg := LoadConfig()
	require.Equal(t, "user@example.com", cfg.Username)
	require.Equal(t, "redis", cfg.CacheDriver)
	require.Equal(t, 48*time.Hour, cfg.RedisTTL)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "login", cfg.CacheKey)
	require.Equal(t, "email", cfg.ChallengeType)
}

func TestGetEnvDurationOrDefault(t *testing.T) {
	t.Setenv("TEST_DURATION", "not-a-duration")
	require.Equal(t, time.Minute, getEnvDurationOrDefault("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "90s")
	require.Equal(t, 90*time.Second, getEnvDurationOrDefault("TEST_DURATION", time.Minute))
}
