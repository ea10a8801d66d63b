package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 7433, cfg.Server.Port)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "./agentbridge.db", cfg.Storage.Path)
	assert.False(t, cfg.Approval.NonInteractive)

	assert.Equal(t, 30*time.Second, cfg.IPC.RequestTimeoutDuration())
	assert.Equal(t, 110*time.Second, cfg.IPC.CompletionTimeoutDuration())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENTBRIDGE_SERVER_PORT", "9000")
	t.Setenv("AGENTBRIDGE_NATS_URL", "nats://localhost:4222")
	t.Setenv("AGENTBRIDGE_APPROVAL_NONINTERACTIVE", "true")
	t.Setenv("AGENTBRIDGE_STORAGE_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.True(t, cfg.Approval.NonInteractive)
	assert.Empty(t, cfg.Storage.Path)
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("AGENTBRIDGE_SERVER_PORT", "70000")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("AGENTBRIDGE_LOGGING_LEVEL", "verbose")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logging.level")
	})

	t.Run("completion timeout below request timeout", func(t *testing.T) {
		t.Setenv("AGENTBRIDGE_IPC_COMPLETIONTIMEOUT", "1000")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "completionTimeout")
	})
}
