package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PTC_SERVER_URL", "PTC_API_KEY", "LANGGRAPH_API_KEY", "PTC_ASSISTANT_ID",
		"PTC_SANDBOX_HOST", "PTC_EMPTY_RESULT_THRESHOLD", "PTC_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Streaming.EmptyResultThreshold)
	assert.Equal(t, 30*time.Second, cfg.Background.IdleTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Background.PollInterval)
	assert.Equal(t, 50000, cfg.Streaming.MaxMentionFileSize)
}

func TestLoadFromFileWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_SANDBOX_HOST", "sandbox.internal")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: http://agents:8123
  assistant_id: coder
sandbox:
  mode: ssh
  ssh:
    host: ${TEST_SANDBOX_HOST}
    user: daytona
streaming:
  empty_result_threshold: 5
background:
  idle_timeout: 10s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://agents:8123", cfg.Server.URL)
	assert.Equal(t, "coder", cfg.Server.AssistantID)
	assert.Equal(t, "sandbox.internal", cfg.Sandbox.SSH.Host)
	assert.Equal(t, DefaultSSHPort, cfg.Sandbox.SSH.Port)
	assert.Equal(t, 5, cfg.Streaming.EmptyResultThreshold)
	assert.Equal(t, 10*time.Second, cfg.Background.IdleTimeout)
	assert.Equal(t, DefaultBackgroundPollInterval, cfg.Background.PollInterval)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, cfg.Server.URL)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PTC_SERVER_URL", "https://remote:443")
	t.Setenv("LANGGRAPH_API_KEY", "lg-key")
	t.Setenv("PTC_SANDBOX_HOST", "box")
	t.Setenv("PTC_EMPTY_RESULT_THRESHOLD", "4")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://remote:443", cfg.Server.URL)
	assert.Equal(t, "lg-key", cfg.Server.APIKey)
	assert.Equal(t, "ssh", cfg.Sandbox.Mode)
	assert.Equal(t, "box", cfg.Sandbox.SSH.Host)
	assert.Equal(t, 4, cfg.Streaming.EmptyResultThreshold)

	t.Setenv("PTC_API_KEY", "ptc-key")
	cfg, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ptc-key", cfg.Server.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing url", func(c *Config) { c.Server.URL = "" }, ErrMissingServer},
		{"bad url", func(c *Config) { c.Server.URL = "not a url" }, ErrInvalidServer},
		{"missing assistant", func(c *Config) { c.Server.AssistantID = "" }, ErrMissingAssistant},
		{"ssh without host", func(c *Config) { c.Sandbox.Mode = "ssh" }, ErrMissingSSHHost},
		{"local without root", func(c *Config) { c.Sandbox.Mode = "local" }, ErrMissingLocalRoot},
		{"unknown mode", func(c *Config) { c.Sandbox.Mode = "docker" }, ErrUnknownSandbox},
		{"zero threshold", func(c *Config) { c.Streaming.EmptyResultThreshold = 0 }, ErrInvalidThreshold},
		{"zero idle", func(c *Config) { c.Background.IdleTimeout = 0 }, ErrInvalidBackground},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Equal(t, tt.want, cfg.Validate())
		})
	}
}
