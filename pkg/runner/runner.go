// Package runner executes one attempt: it acquires an isolated workspace,
// launches the external agent process under budget enforcement, forwards
// the agent's structured event stream into the log pipeline, and produces a
// raw outcome for the classifier. The runner never decides attempt status.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"workbench/pkg/logstream"
	"workbench/pkg/protocol"
)

// maxEventLine caps one agent event line at 4 MiB.
const maxEventLine = 4 * 1024 * 1024

// Job is one claimed attempt ready to run.
type Job struct {
	Attempt        protocol.Attempt
	Signal         protocol.Signal
	Budget         protocol.Budget
	Clarifications []protocol.AnsweredQuestion
	RepoURL        string // empty skips cloning; the agent runs in a bare workspace
}

// Runner executes attempts.
type Runner struct {
	pipeline   *logstream.Pipeline
	spawner    AgentSpawner
	workspaces WorkspaceManager
	git        CommandRunner
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithGit overrides the command runner used for diff collection.
func WithGit(g CommandRunner) Option {
	return func(r *Runner) { r.git = g }
}

// New creates a Runner.
func New(pipeline *logstream.Pipeline, spawner AgentSpawner, workspaces WorkspaceManager, opts ...Option) *Runner {
	r := &Runner{
		pipeline:   pipeline,
		spawner:    spawner,
		workspaces: workspaces,
		git:        &ExecCommandRunner{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one attempt end to end and returns the raw outcome. The
// returned error is reserved for failures before the agent could launch
// (workspace acquisition); everything after launch is expressed in the
// outcome. Workspace cleanup runs on every exit path.
func (r *Runner) Run(ctx context.Context, job Job) (RawOutcome, error) {
	out := RawOutcome{AttemptID: job.Attempt.ID, Exit: ExitCompleted}

	ws, err := r.workspaces.Create(ctx, job.Attempt.ID, job.RepoURL)
	if err != nil {
		return RawOutcome{}, fmt.Errorf("attempt %s: %w", job.Attempt.ID, err)
	}
	defer func() {
		// Cleanup must run even when ctx is already cancelled.
		if rerr := r.workspaces.Remove(context.WithoutCancel(ctx), ws); rerr != nil {
			r.logger.Error("workspace cleanup failed",
				"attempt_id", job.Attempt.ID, "error", rerr)
		}
	}()

	r.appendEvent(ctx, job.Attempt.ID, map[string]any{
		"event": "attempt_started",
		"title": job.Signal.Title,
	})
	r.appendEvent(ctx, job.Attempt.ID, map[string]any{
		"event":  "workspace_ready",
		"path":   ws.Dir,
		"branch": ws.Branch,
	})

	prompt := BuildPrompt(job.Signal, job.Clarifications)
	if _, err := r.pipeline.AppendEvent(ctx, job.Attempt.ID, protocol.KindPrompt,
		map[string]any{"content": prompt}); err != nil {
		r.logger.Error("append prompt entry", "attempt_id", job.Attempt.ID, "error", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, job.Budget.WallClock.Std())
	defer cancel()
	start := time.Now()

	proc, err := r.spawner.Spawn(runCtx, SpawnRequest{Prompt: prompt, Dir: ws.Dir})
	if err != nil {
		out.Exit = ExitCrashed
		out.ErrorDetail = err.Error()
		out.Metrics.DurationMS = time.Since(start).Milliseconds()
		r.appendTerminal(ctx, &out)
		return out, nil
	}

	// Watchdog: a wall-clock expiry (or caller cancellation) hard-kills the
	// process group immediately rather than waiting for the drain to notice.
	watchdogDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			_ = proc.Kill()
		case <-watchdogDone:
		}
	}()

	breach, scanErr := r.drain(ctx, proc, job, &out)
	close(watchdogDone)
	waitErr := proc.Wait()

	out.Metrics.DurationMS = time.Since(start).Milliseconds()

	if breach == nil && runCtx.Err() == context.DeadlineExceeded {
		breach = &BudgetBreach{
			Gate:     GateWallClock,
			Limit:    job.Budget.WallClock.Std().Milliseconds(),
			Observed: out.Metrics.DurationMS,
		}
	}

	switch {
	case breach != nil:
		out.Exit = ExitBudget
		out.Breach = breach
		out.ErrorDetail = fmt.Sprintf("%s budget exceeded: limit %d, observed %d",
			breach.Gate, breach.Limit, breach.Observed)
	case ctx.Err() != nil:
		out.Exit = ExitCancelled
		out.ErrorDetail = "run cancelled"
	case scanErr != nil && !out.ResultSeen:
		out.Exit = ExitCrashed
		out.ErrorDetail = fmt.Sprintf("agent stream unreadable: %v", scanErr)
	case waitErr != nil && !out.ResultSeen:
		out.Exit = ExitCrashed
		out.ErrorDetail = waitErr.Error()
	default:
		out.Exit = ExitCompleted
	}

	// Soft gates are measured only at normal completion; a cancelled or
	// crashed run has no meaningful diff to gate.
	if out.Exit == ExitCompleted {
		out.Diff = collectDiffStats(context.WithoutCancel(ctx), r.git, ws)
	}

	r.appendTerminal(ctx, &out)
	return out, nil
}

// drain reads the agent's event stream until EOF, forwarding each event to
// the log pipeline and enforcing the tool-call and turn hard gates. It
// returns the breach that stopped the run, if any, and the scan error that
// cut the stream short (an oversized line, a broken pipe).
func (r *Runner) drain(ctx context.Context, proc AgentProcess, job Job, out *RawOutcome) (*BudgetBreach, error) {
	scanner := bufio.NewScanner(proc.Events())
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var texts []string
	var breach *BudgetBreach

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		ev, err := protocol.ParseAgentEvent(line)
		if err != nil {
			// Not a structured event; preserve it verbatim for diagnosis.
			r.appendEvent(ctx, job.Attempt.ID, map[string]any{
				"event": "unparseable_output",
				"raw":   string(line),
			})
			continue
		}

		if _, err := r.pipeline.Append(ctx, job.Attempt.ID,
			protocol.LogKindFor(ev.Type), string(line), false); err != nil {
			r.logger.Error("append log entry", "attempt_id", job.Attempt.ID, "error", err)
		}

		switch ev.Type {
		case protocol.EventMessage:
			out.Metrics.Turns++
			if ev.Text != "" {
				texts = append(texts, ev.Text)
			}
			if job.Budget.Turns > 0 && out.Metrics.Turns > job.Budget.Turns {
				breach = &BudgetBreach{
					Gate:     GateTurns,
					Limit:    int64(job.Budget.Turns),
					Observed: int64(out.Metrics.Turns),
				}
			}
		case protocol.EventToolCall:
			out.Metrics.ToolCalls++
			if job.Budget.ToolCalls > 0 && out.Metrics.ToolCalls > job.Budget.ToolCalls {
				breach = &BudgetBreach{
					Gate:     GateToolCalls,
					Limit:    int64(job.Budget.ToolCalls),
					Observed: int64(out.Metrics.ToolCalls),
				}
			}
		case protocol.EventQuestion:
			out.Questions = append(out.Questions, ev.Questions...)
		case protocol.EventInterrupted:
			out.Interrupted = true
		case protocol.EventResult:
			out.ResultSeen = true
			out.IsError = ev.IsError
			if ev.Error != "" {
				out.ErrorDetail = ev.Error
			}
			if ev.Text != "" {
				texts = append(texts, ev.Text)
			}
			if ev.Result != nil {
				out.Metrics.CostUSD = ev.Result.CostUSD
				out.Metrics.InputTokens = ev.Result.InputTokens
				out.Metrics.OutputTokens = ev.Result.OutputTokens
				if ev.Result.Turns > 0 {
					out.Metrics.Turns = ev.Result.Turns
				}
			}
		}

		if breach != nil {
			_ = proc.Kill()
			break
		}
	}

	out.FinalText = joinTexts(texts)
	return breach, scanner.Err()
}

// appendTerminal writes the single is_final entry closing an attempt's log.
func (r *Runner) appendTerminal(ctx context.Context, out *RawOutcome) {
	payload, err := json.Marshal(map[string]any{
		"exit":    out.Exit,
		"breach":  out.Breach,
		"error":   out.ErrorDetail,
		"metrics": out.Metrics,
	})
	if err != nil {
		payload = []byte("{}")
	}
	if _, err := r.pipeline.Append(context.WithoutCancel(ctx), out.AttemptID,
		protocol.KindResult, string(payload), true); err != nil {
		r.logger.Error("append terminal entry", "attempt_id", out.AttemptID, "error", err)
	}
}

// appendEvent writes a runner lifecycle event, best effort.
func (r *Runner) appendEvent(ctx context.Context, attemptID string, payload map[string]any) {
	if _, err := r.pipeline.AppendEvent(ctx, attemptID, protocol.KindEvent, payload); err != nil {
		r.logger.Error("append event entry", "attempt_id", attemptID, "error", err)
	}
}

func joinTexts(texts []string) string {
	var b bytes.Buffer
	for i, t := range texts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t)
	}
	return b.String()
}
