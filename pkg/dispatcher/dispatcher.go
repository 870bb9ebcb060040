// Package dispatcher runs the worker pool that drives attempts from claim
// to terminal status. Each worker claims at most one pending attempt at a
// time via the store's atomic conditional update, runs it under budget
// enforcement, classifies the raw outcome, and persists the verdict along
// with the signal's new lifecycle state. Workers coordinate only through
// the store; instances may run in separate processes.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"workbench/pkg/clarify"
	"workbench/pkg/classifier"
	"workbench/pkg/protocol"
	"workbench/pkg/runner"
	"workbench/pkg/store"
)

// Config holds dispatcher configuration.
type Config struct {
	Workers      int           // worker pool size (default 2)
	PollInterval time.Duration // claim poll interval (default 5s)
	CloneRepos   bool          // clone the signal's repository into the workspace
	Logger       *slog.Logger
}

func (c Config) withDefaults() Config {
	out := c
	if out.Workers == 0 {
		out.Workers = 2
	}
	if out.PollInterval == 0 {
		out.PollInterval = 5 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Dispatcher owns the worker pool.
type Dispatcher struct {
	cfg     Config
	store   *store.Store
	runner  *runner.Runner
	clarify *clarify.Manager
	logger  *slog.Logger
}

// New creates a Dispatcher. It does not start any workers; call Run.
func New(cfg Config, st *store.Store, run *runner.Runner, cm *clarify.Manager) *Dispatcher {
	resolved := cfg.withDefaults()
	return &Dispatcher{
		cfg:     resolved,
		store:   st,
		runner:  run,
		clarify: cm,
		logger:  resolved.Logger,
	}
}

// Run starts the fixed-size worker pool and blocks until ctx is cancelled.
// Workers finish their in-flight attempt before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= d.cfg.Workers; i++ {
		workerID := workerID(i)
		g.Go(func() error {
			d.workerLoop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

// workerID builds a store-wide unique worker identity so claims from
// separate processes are attributable.
func workerID(n int) string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), n)
}

// workerLoop polls for claimable work until ctx is cancelled. Observing no
// work is not an error; the worker just waits out the poll interval.
func (d *Dispatcher) workerLoop(ctx context.Context, workerID string) {
	d.logger.Info("worker started", "worker_id", workerID)
	for {
		if ctx.Err() != nil {
			d.logger.Info("worker stopping", "worker_id", workerID)
			return
		}

		claim, err := d.store.ClaimNext(ctx, workerID)
		switch {
		case errors.Is(err, store.ErrNoWork):
			d.sleep(ctx)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("claim failed", "worker_id", workerID, "error", err)
			d.sleep(ctx)
			continue
		}

		d.process(ctx, workerID, claim)
	}
}

func (d *Dispatcher) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(d.cfg.PollInterval):
	}
}

// process runs one claimed attempt through run → classify → persist.
func (d *Dispatcher) process(ctx context.Context, workerID string, claim *store.ClaimedAttempt) {
	d.logger.Info("attempt claimed",
		"worker_id", workerID,
		"attempt_id", claim.Attempt.ID,
		"signal_id", claim.Signal.ID,
		"attempt_number", claim.Attempt.AttemptNumber,
		"priority", claim.Signal.Priority)

	job := runner.Job{
		Attempt:        claim.Attempt,
		Signal:         claim.Signal,
		Budget:         claim.Budget,
		Clarifications: claim.Meta.Clarifications,
	}
	if d.cfg.CloneRepos && claim.Signal.Repo != "" {
		job.RepoURL = fmt.Sprintf("https://github.com/%s.git", claim.Signal.Repo)
	}

	out, err := d.runner.Run(ctx, job)
	// Persistence below must survive dispatcher shutdown mid-attempt.
	pctx := context.WithoutCancel(ctx)
	if err != nil {
		d.finalize(pctx, claim.Attempt.ID, store.FinalizeParams{
			Status:       protocol.AttemptFailed,
			ErrorMessage: err.Error(),
			SignalState:  protocol.SignalQueued,
		})
		return
	}

	cls, err := classifier.Classify(out, claim.Budget)
	if err != nil {
		// An unclassifiable outcome is an engine defect. Fail the attempt
		// with the detail preserved rather than guess a status.
		d.logger.Error("classifier defect",
			"worker_id", workerID, "attempt_id", claim.Attempt.ID, "error", err)
		d.finalize(pctx, claim.Attempt.ID, store.FinalizeParams{
			Status:       protocol.AttemptFailed,
			ErrorMessage: "internal: " + err.Error(),
			SignalState:  protocol.SignalBlocked,
			Summary:      protocol.Summary{Metrics: out.Metrics},
		})
		return
	}

	if cls.Status == protocol.AttemptNeedsHuman {
		if _, err := d.clarify.RecordQuestions(pctx, claim.Attempt.ID, cls.Questions); err != nil {
			d.logger.Error("record clarifications failed",
				"attempt_id", claim.Attempt.ID, "error", err)
		}
	}

	d.finalize(pctx, claim.Attempt.ID, store.FinalizeParams{
		Status:       cls.Status,
		ErrorMessage: cls.ErrorMessage,
		PRURL:        cls.PRURL,
		Summary: protocol.Summary{
			FilesTouched: cls.FilesTouched,
			Assumptions:  cls.Assumptions,
			RiskFlags:    cls.RiskFlags,
			Metrics:      out.Metrics,
		},
		SignalState: signalStateFor(cls.Status),
	})

	d.logger.Info("attempt finished",
		"worker_id", workerID,
		"attempt_id", claim.Attempt.ID,
		"status", cls.Status,
		"duration_ms", out.Metrics.DurationMS)
}

func (d *Dispatcher) finalize(ctx context.Context, attemptID string, p store.FinalizeParams) {
	if err := d.store.FinalizeAttempt(ctx, attemptID, p); err != nil {
		d.logger.Error("finalize failed", "attempt_id", attemptID, "error", err)
	}
}

// signalStateFor maps a terminal attempt status to the signal's resulting
// lifecycle state. Failures requeue the signal for an explicit human retry;
// the engine never retries on its own.
func signalStateFor(status protocol.AttemptStatus) protocol.SignalState {
	switch status {
	case protocol.AttemptSuccess, protocol.AttemptNoop:
		return protocol.SignalCompleted
	case protocol.AttemptNeedsHuman:
		return protocol.SignalBlocked
	default:
		return protocol.SignalQueued
	}
}
