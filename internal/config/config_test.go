package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verify-gate/internal/config"
)

func setRequired(t *testing.T) {
	t.Setenv("DESTINATION_URL", "https://example.com/landing")
	t.Setenv("VERIFICATION_CODE", "A7B2C9D")
}

func TestFromEnvDefaults(t *testing.T) {
	require := require.New(t)
	setRequired(t)

	cfg, err := config.FromEnv()
	require.NoError(err)

	require.Equal("development", cfg.Environment)
	require.Equal(8000, cfg.Server.Port)
	require.Equal(":8000", cfg.GetServerAddress())
	require.Equal(15*time.Minute, cfg.Verification.SessionTimeout)
	require.Equal(5, cfg.Verification.MaxAttempts)
	require.Equal(16, cfg.Ledger.Shards)
	require.Equal(100000, cfg.Ledger.Capacity)
	require.Equal(time.Minute, cfg.Ledger.SweepInterval)
	require.Equal([]string{"*"}, cfg.CORS.AllowedOrigins)
	require.False(cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	require := require.New(t)
	setRequired(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TIMEOUT", "90s")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ENABLE_TLS", "true")
	t.Setenv("TLS_PORT", "9443")

	cfg, err := config.FromEnv()
	require.NoError(err)

	require.True(cfg.IsProduction())
	require.Equal(9090, cfg.Server.Port)
	require.Equal(":9443", cfg.GetServerAddress())
	require.Equal(90*time.Second, cfg.Verification.SessionTimeout)
	require.Equal(3, cfg.Verification.MaxAttempts)
	require.Equal([]string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestFromEnvMissingRequired(t *testing.T) {
	require := require.New(t)
	t.Setenv("DESTINATION_URL", "")
	t.Setenv("VERIFICATION_CODE", "")

	_, err := config.FromEnv()
	require.Error(err)
	require.Contains(err.Error(), "VERIFICATION_CODE")
	require.Contains(err.Error(), "DESTINATION_URL")
}

func TestFromEnvInvalidValues(t *testing.T) {
	require := require.New(t)
	setRequired(t)
	t.Setenv("MAX_ATTEMPTS", "0")
	t.Setenv("SESSION_TIMEOUT", "soon")
	t.Setenv("DESTINATION_URL", "/relative")

	_, err := config.FromEnv()
	require.Error(err)
	require.Contains(err.Error(), "MAX_ATTEMPTS must be positive")
	require.Contains(err.Error(), "SESSION_TIMEOUT: invalid duration")
	require.Contains(err.Error(), "DESTINATION_URL must be an absolute")
}

func TestValidateAutoCertNeedsDomain(t *testing.T) {
	require := require.New(t)
	setRequired(t)
	t.Setenv("ENABLE_TLS", "true")
	t.Setenv("AUTO_CERT", "true")
	t.Setenv("DOMAIN", "")

	_, err := config.FromEnv()
	require.ErrorContains(err, "DOMAIN is required")
}
