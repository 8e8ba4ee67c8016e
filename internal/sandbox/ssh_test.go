package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSHNormalizePath(t *testing.T) {
	s := NewSSH(SSHConfig{Host: "box", HomeDir: "/home/daytona"})
	assert.Equal(t, "/home/daytona/src/a.py", s.NormalizePath("src/a.py"))
	assert.Equal(t, "/etc/hosts", s.NormalizePath("/etc/../etc/hosts"))
	assert.Equal(t, "/home/daytona", s.NormalizePath("."))
}

func TestSSHDefaults(t *testing.T) {
	s := NewSSH(SSHConfig{Host: "box"})
	assert.Equal(t, 22, s.config.Port)
	assert.Equal(t, "/", s.config.HomeDir)

	d := DefaultSSHConfig()
	assert.Equal(t, 22, d.Port)
	assert.NotEmpty(t, d.User)
}

func TestSSHHealthWithoutConnection(t *testing.T) {
	s := NewSSH(SSHConfig{Host: "box"})
	err := s.Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsSandboxError(err.Error()))
	assert.NoError(t, s.Close())
}

func TestSSHNoAuthMethod(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	s := NewSSH(SSHConfig{Host: "box", KeyPath: "~/.ssh/missing"})

	_, err := s.buildClientConfig()
	assert.ErrorContains(t, err, "no authentication method")

	err = s.Connect(context.Background())
	assert.ErrorContains(t, err, "no authentication method")
}

func TestSSHPasswordAuth(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	s := NewSSH(SSHConfig{Host: "box", User: "daytona", Password: "secret"})

	cfg, err := s.buildClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "daytona", cfg.User)
	assert.Len(t, cfg.Auth, 1)
}
