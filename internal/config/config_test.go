package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ZCHAT_USERNAME", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Millisecond, cfg.Client.IdleDelay)
	assert.Equal(t, "ws://localhost:8000/ws", cfg.Client.WSURL)
	assert.True(t, cfg.Client.ReplyWelcome)

	assert.Error(t, cfg.ValidateServer())
	assert.Error(t, cfg.ValidateClient())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("ZCHAT_SERVER_URL", "https://chat.example/base/")
	t.Setenv("ZCHAT_USERNAME", "alice")
	t.Setenv("ZCHAT_IDLE_DELAY", "25ms")
	t.Setenv("ZCHAT_REPLY_WELCOME", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "wss://chat.example/base/ws", cfg.Client.WSURL)
	assert.Equal(t, 25*time.Millisecond, cfg.Client.IdleDelay)
	assert.False(t, cfg.Client.ReplyWelcome)

	assert.NoError(t, cfg.ValidateServer())
	assert.NoError(t, cfg.ValidateClient())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")
	_, err := config.Load()
	assert.Error(t, err)
}
