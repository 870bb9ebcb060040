package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes the root command with args against an isolated home.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// isolateHome points WORKBENCH_HOME at a fresh temp dir.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("WORKBENCH_HOME", home)
	t.Setenv("WORKBENCH_DB_PATH", "")
	t.Setenv("WORKBENCH_CONFIG", "")
	t.Setenv("WORKBENCH_AGENT_BIN", "")
	return home
}

func TestInitCreatesStateLayout(t *testing.T) {
	home := isolateHome(t)

	out, err := runCommand(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized")

	assert.FileExists(t, filepath.Join(home, "state.db"))
	assert.FileExists(t, filepath.Join(home, "config.toml"))
	assert.DirExists(t, filepath.Join(home, "workspaces"))
}

func TestInitIsIdempotent(t *testing.T) {
	isolateHome(t)

	_, err := runCommand(t, "init")
	require.NoError(t, err)
	out, err := runCommand(t, "init")
	require.NoError(t, err)
	// Existing config is not overwritten.
	assert.NotContains(t, out, "wrote")
}

func TestVersionFlag(t *testing.T) {
	out, err := runCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "workbench")
}
