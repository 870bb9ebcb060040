package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// SpawnRequest describes one agent invocation.
type SpawnRequest struct {
	Prompt string // task content, written to the agent's stdin
	Dir    string // isolated workspace the agent runs in
}

// AgentProcess abstracts a running agent subprocess.
type AgentProcess interface {
	// Events is the agent's structured output stream: one JSON event per line.
	Events() io.Reader
	// Wait blocks until the process exits.
	Wait() error
	// Kill force-terminates the process and all of its descendants.
	Kill() error
}

// AgentSpawner abstracts agent invocation for testing.
type AgentSpawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (AgentProcess, error)
}

// ExecSpawner is the production AgentSpawner: it invokes the configured
// agent executable with the prompt on stdin. Each agent gets its own
// process group (Setpgid) so Kill can terminate the entire tree.
type ExecSpawner struct {
	Bin  string
	Args []string
}

// Spawn starts the agent in dir with the prompt on stdin.
func (s *ExecSpawner) Spawn(ctx context.Context, req SpawnRequest) (AgentProcess, error) {
	cmd := exec.CommandContext(ctx, s.Bin, s.Args...) //nolint:gosec // bin comes from operator config
	cmd.Dir = req.Dir
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// CommandContext's default kill only reaches the direct child; budget
	// cancellation must take down the whole group.
	cmd.Cancel = func() error { return killGroup(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent %s: %w", s.Bin, err)
	}
	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

// execProcess wraps *exec.Cmd to implement AgentProcess.
type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (p *execProcess) Events() io.Reader { return p.stdout }

func (p *execProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("agent process: %w", err)
	}
	return nil
}

// Kill sends SIGKILL to the agent's process group (negative PID) so that
// descendant processes are terminated with it.
func (p *execProcess) Kill() error {
	return killGroup(p.cmd)
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		// Group already gone; fall back to the direct child.
		_ = cmd.Process.Kill()
		return nil //nolint:nilerr // kill failure means process already exited
	}
	return nil
}
