package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from an empty directory so no stray config file is discovered.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 20, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.Agent.FailureThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Agent.StreamTimeout)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 100, cfg.Session.MaxMessages)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: anthropic
model: claude-3-5-sonnet-20241022
agent:
  max_steps: 5
  system_prompt: "You are a travel planner."
session:
  backend: redis
  redis_url: redis://localhost:6379/0
  ttl: 1h
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Model)
	assert.Equal(t, 5, cfg.Agent.MaxSteps)
	assert.Equal(t, "You are a travel planner.", cfg.Agent.SystemPrompt)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AGENTRUN_PROVIDER", "mock")
	t.Setenv("AGENTRUN_AGENT_MAX_STEPS", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Provider)
	assert.Equal(t, 7, cfg.Agent.MaxSteps)
}

func TestValidate_Rejections(t *testing.T) {
	t.Chdir(t.TempDir())

	base, err := Load("")
	require.NoError(t, err)

	bad := *base
	bad.Provider = "watson"
	assert.ErrorContains(t, bad.Validate(), "unknown provider")

	bad = *base
	bad.Session.Backend = "redis"
	assert.ErrorContains(t, bad.Validate(), "redis_url")

	bad = *base
	bad.Session.Backend = "mysql"
	assert.ErrorContains(t, bad.Validate(), "mysql_dsn")

	bad = *base
	bad.Agent.MaxSteps = 0
	assert.ErrorContains(t, bad.Validate(), "max_steps")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
