package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "ws://127.0.0.1", cfg.Aria2Host)
	assert.Equal(t, "6800", cfg.Aria2Port)
	assert.Equal(t, "silly", cfg.DataDir)
	assert.False(t, cfg.Verbose)
	assert.Len(t, cfg.JWTSecret, 32, "unset jwt secret must be generated")
}

func TestLoadFlagsOverride(t *testing.T) {
	cfg, err := Load([]string{
		"-host", "127.0.0.1",
		"-port", "9999",
		"-aria2-host", "wss://aria2.example",
		"-aria2-port", "443",
		"-aria2-secret", "hunter2",
		"-jwt-secret", "fixed",
		"-verbose",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "hunter2", cfg.Aria2Secret)
	assert.Equal(t, "fixed", cfg.JWTSecret)
	assert.True(t, cfg.Verbose)

	assert.Equal(t, "127.0.0.1:9999", cfg.Addr())
	assert.Equal(t, "wss://aria2.example:443/jsonrpc", cfg.Aria2URL())
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("SILLY_PORT", "7070")
	t.Setenv("ARIA2_SECRET", "envsecret")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "envsecret", cfg.Aria2Secret)
}

func TestLoadRejectsBadFlags(t *testing.T) {
	_, err := Load([]string{"-port", "not-a-number"})
	assert.Error(t, err)
}
