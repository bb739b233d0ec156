package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresSigningMaterial(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_PRIVATE_KEY", "")

	_, err := New()
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, "session-auth", cfg.GetIssuer())
	require.Equal(t, 15*time.Minute, cfg.GetAccessTokenTTL())
	require.Equal(t, 90*24*time.Hour, cfg.GetSessionMaxAge())
	require.True(t, cfg.GetRequireVerifiedLogin())
}

func TestNewParsesOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", ":9090")
	t.Setenv("ACCESS_TTL", "5m")
	t.Setenv("SESSION_MAX_DAYS", "30")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("BASE_URL", "https://auth.example.com/")

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, 5*time.Minute, cfg.GetAccessTokenTTL())
	require.Equal(t, 30*24*time.Hour, cfg.GetSessionMaxAge())
	require.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.GetAllowedOrigins())
	require.Equal(t, "https://auth.example.com", cfg.GetBaseURL())
}
