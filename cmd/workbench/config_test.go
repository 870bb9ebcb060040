package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbench/pkg/protocol"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("WORKBENCH_AGENT_BIN", "")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "workbench-agent", cfg.Agent.Bin)

	poll, err := cfg.pollInterval()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, poll)

	budget, err := cfg.budget()
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultBudget(), budget)
}

func TestLoadConfigParsesFile(t *testing.T) {
	t.Setenv("WORKBENCH_AGENT_BIN", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[worker]
count = 4
poll_interval = "250ms"

[budget]
wall_clock = "5m"
tool_calls = 30

[agent]
bin = "/usr/local/bin/agent"
args = ["--json"]
clone_repos = true

[workspace]
base_dir = "/scratch"
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, "/usr/local/bin/agent", cfg.Agent.Bin)
	assert.Equal(t, []string{"--json"}, cfg.Agent.Args)
	assert.True(t, cfg.Agent.CloneRepos)
	assert.Equal(t, "/scratch", cfg.Workspace.BaseDir)

	poll, err := cfg.pollInterval()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, poll)

	budget, err := cfg.budget()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, budget.WallClock.Std())
	assert.Equal(t, 30, budget.ToolCalls)
	// Unset budget fields keep their defaults.
	assert.Equal(t, protocol.DefaultBudget().Turns, budget.Turns)
}

func TestLoadConfigAgentBinEnvOverride(t *testing.T) {
	t.Setenv("WORKBENCH_AGENT_BIN", "/opt/agent")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/agent", cfg.Agent.Bin)
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestDefaultConfigTOMLParses(t *testing.T) {
	t.Setenv("WORKBENCH_AGENT_BIN", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfigTOML), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Worker.Count)

	budget, err := cfg.budget()
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultBudget(), budget)
}
