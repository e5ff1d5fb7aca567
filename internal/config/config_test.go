package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_MAX_AGE", "")
	t.Setenv("REFRESH_TOKEN_MAX_AGE", "")
	t.Setenv("FREE_CONTACT_QUOTA", "")
	t.Setenv("SERVER_PORT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, 10*24*time.Hour, cfg.RefreshTokenTTL())
	assert.Equal(t, 7, cfg.FreeContactQuota)
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_MAX_AGE", "abc")
	t.Setenv("REFRESH_TOKEN_MAX_AGE", "-5")
	t.Setenv("FREE_CONTACT_QUOTA", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, defaultAccessTokenMaxAge, cfg.AccessTokenMaxAge)
	assert.Equal(t, defaultRefreshTokenMaxAge, cfg.RefreshTokenMaxAge)
	assert.Equal(t, 10, cfg.FreeContactQuota)
}

func TestLoadConfig_AllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " app.roaia.io, ,localhost:* ")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"app.roaia.io", "localhost:*"}, cfg.AllowedOrigins)
}

func TestLoadConfig_LockoutAndRateLimit(t *testing.T) {
	t.Setenv("LOGIN_MAX_FAILED_ATTEMPTS", "")
	t.Setenv("LOGIN_LOCKOUT_SECONDS", "")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_CAPACITY", "")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "500ms")
	t.Setenv("RATE_LIMIT_TTL", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.LoginMaxFailedAttempts)
	assert.Equal(t, 120, cfg.LoginLockoutSeconds)
	assert.Equal(t, 3, cfg.OTPMaxAttempts)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, 20, cfg.RateLimitCapacity)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimitRefillInterval)
	assert.Equal(t, 10*time.Minute, cfg.RateLimitTTL)
}
