package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Workspace is a scoped, exclusive working directory for one attempt.
// Nothing outside it is mutated by the attempt.
type Workspace struct {
	Root   string // temp dir owned by this attempt; removed on cleanup
	Dir    string // directory the agent runs in (Root or Root/repo)
	Branch string // working branch when a repository was cloned
}

// WorkspaceManager creates and removes attempt workspaces.
type WorkspaceManager interface {
	Create(ctx context.Context, attemptID, repoURL string) (Workspace, error)
	Remove(ctx context.Context, ws Workspace) error
}

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner implements CommandRunner using os/exec.
type ExecCommandRunner struct{}

// Run executes a command in dir and returns its stdout as bytes.
func (r *ExecCommandRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// TempWorkspaceManager creates per-attempt temp directories under BaseDir.
// When a repository URL is supplied it shallow-clones it and checks out a
// working branch named after the attempt.
type TempWorkspaceManager struct {
	BaseDir string
	Git     CommandRunner
}

// NewTempWorkspaceManager returns a manager rooted at baseDir using the real
// git binary.
func NewTempWorkspaceManager(baseDir string) *TempWorkspaceManager {
	return &TempWorkspaceManager{BaseDir: baseDir, Git: &ExecCommandRunner{}}
}

// Create acquires an exclusive workspace for the attempt. On any error the
// partially-created directory is removed before returning.
func (m *TempWorkspaceManager) Create(ctx context.Context, attemptID, repoURL string) (Workspace, error) {
	if err := os.MkdirAll(m.BaseDir, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("create workspace base %s: %w", m.BaseDir, err)
	}
	root, err := os.MkdirTemp(m.BaseDir, "attempt_")
	if err != nil {
		return Workspace{}, fmt.Errorf("create workspace: %w", err)
	}

	ws := Workspace{Root: root, Dir: root}
	if repoURL == "" {
		return ws, nil
	}

	repoDir := filepath.Join(root, "repo")
	if _, err := m.Git.Run(ctx, root, "git", "clone", "--depth", "1", repoURL, repoDir); err != nil {
		_ = os.RemoveAll(root)
		return Workspace{}, fmt.Errorf("clone %s: %w", repoURL, err)
	}

	branch := "workbench/attempt-" + shortID(attemptID)
	if _, err := m.Git.Run(ctx, repoDir, "git", "checkout", "-b", branch); err != nil {
		_ = os.RemoveAll(root)
		return Workspace{}, fmt.Errorf("create branch %s: %w", branch, err)
	}

	ws.Dir = repoDir
	ws.Branch = branch
	return ws, nil
}

// Remove deletes the workspace. Removal runs on every exit path of a run,
// so it tolerates an already-missing directory.
func (m *TempWorkspaceManager) Remove(_ context.Context, ws Workspace) error {
	if ws.Root == "" {
		return nil
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		return fmt.Errorf("remove workspace %s: %w", ws.Root, err)
	}
	return nil
}

// shortID returns the first 8 characters of an ID for branch naming.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
