package runner //nolint:testpackage // white-box access to workspace internals

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingGit records commands and optionally fails a matching one.
type recordingGit struct {
	commands [][]string
	failOn   string
}

func (g *recordingGit) Run(_ context.Context, _, name string, args ...string) ([]byte, error) {
	cmd := append([]string{name}, args...)
	g.commands = append(g.commands, cmd)
	if g.failOn != "" && strings.Contains(strings.Join(cmd, " "), g.failOn) {
		return nil, errors.New("git: " + g.failOn + " failed")
	}
	return nil, nil
}

func TestTempWorkspaceCreateBare(t *testing.T) {
	t.Parallel()
	m := &TempWorkspaceManager{BaseDir: t.TempDir(), Git: &recordingGit{}}

	ws, err := m.Create(context.Background(), "attempt-1", "")
	require.NoError(t, err)
	assert.Equal(t, ws.Root, ws.Dir)
	assert.Empty(t, ws.Branch)
	assert.DirExists(t, ws.Root)

	require.NoError(t, m.Remove(context.Background(), ws))
	assert.NoDirExists(t, ws.Root)

	// Removal is idempotent.
	require.NoError(t, m.Remove(context.Background(), ws))
}

func TestTempWorkspaceCreateWithClone(t *testing.T) {
	t.Parallel()
	git := &recordingGit{}
	m := &TempWorkspaceManager{BaseDir: t.TempDir(), Git: git}

	ws, err := m.Create(context.Background(), "0123456789abcdef", "https://github.com/acme/api.git")
	require.NoError(t, err)
	assert.Equal(t, "workbench/attempt-01234567", ws.Branch)
	assert.True(t, strings.HasSuffix(ws.Dir, "/repo"))

	require.Len(t, git.commands, 2)
	assert.Equal(t, "clone", git.commands[0][1])
	assert.Equal(t, "checkout", git.commands[1][1])
}

func TestTempWorkspaceCloneFailureCleansUp(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	m := &TempWorkspaceManager{BaseDir: base, Git: &recordingGit{failOn: "clone"}}

	_, err := m.Create(context.Background(), "a1", "https://github.com/acme/api.git")
	require.Error(t, err)

	// The partial workspace directory must not leak.
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestShortID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "01234567", shortID("0123456789"))
	assert.Equal(t, "abc", shortID("abc"))
}
