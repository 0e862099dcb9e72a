package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, "mute", cfg.Redis.KeyPrefix)
	assert.Equal(t, "https://api.clerk.com", cfg.Identity.BaseURL)
	assert.ErrorIs(t, cfg.ValidateAPI(), ErrJWTSecretRequired)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("PUSH_ENABLED", "true")
	t.Setenv("IDENTITY_SECRET_KEY", "sk_test")
	t.Setenv("IDENTITY_SESSION_ID", "sess_1")
	t.Setenv("STOREFRONT_PROCESSING_DELAY", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 90*time.Minute, cfg.JWT.TTL)
	assert.True(t, cfg.Push.Enabled)
	assert.Equal(t, "sk_test", cfg.Identity.SecretKey)
	assert.Equal(t, "sess_1", cfg.Identity.SessionID)
	assert.Equal(t, time.Duration(0), cfg.Storefront.ProcessingDelay)
	assert.NoError(t, cfg.ValidateAPI())
}
