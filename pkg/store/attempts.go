package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"workbench/pkg/protocol"
)

// CreateAttempt creates a pending attempt for a signal with the next
// attempt number, and moves the signal to in_progress. The insert is
// guarded by the per-signal exclusivity invariant: it fails with
// ErrSignalBusy when another attempt on the same signal is still pending
// or running. The guard and the insert are one statement, so there is no
// window between checking and creating.
func (s *Store) CreateAttempt(ctx context.Context, signalID string, budget protocol.Budget, meta protocol.RunnerMetadata) (*protocol.Attempt, error) {
	policy, err := protocol.EncodeBudget(budget)
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal runner metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create attempt: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	id := uuid.NewString()
	now := s.now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO attempts (id, signal_id, attempt_number, status, policy, runner_metadata, created_at, updated_at)
		SELECT ?1, ?2,
		       (SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM attempts WHERE signal_id = ?2),
		       'pending', ?3, ?4, ?5, ?5
		WHERE EXISTS (SELECT 1 FROM signals WHERE id = ?2)
		  AND NOT EXISTS (
		        SELECT 1 FROM attempts
		        WHERE signal_id = ?2 AND status IN ('pending', 'running'))`,
		id, signalID, policy, string(metaJSON), now)
	if err != nil {
		return nil, fmt.Errorf("insert attempt for signal %s: %w", signalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert attempt rows: %w", err)
	}
	if n == 0 {
		// Distinguish a missing signal from a busy one.
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM signals WHERE id = ?`, signalID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check signal %s: %w", signalID, err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("signal %s: %w", signalID, ErrNotFound)
		}
		return nil, fmt.Errorf("signal %s: %w", signalID, ErrSignalBusy)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE signals SET state = ?, updated_at = ? WHERE id = ?`,
		string(protocol.SignalInProgress), now, signalID); err != nil {
		return nil, fmt.Errorf("mark signal %s in_progress: %w", signalID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create attempt: %w", err)
	}
	return s.GetAttempt(ctx, id)
}

// ClaimedAttempt bundles everything a worker needs to run a claim: the
// attempt, its signal, the decoded budget, and any carried clarifications.
type ClaimedAttempt struct {
	Attempt protocol.Attempt
	Signal  protocol.Signal
	Budget  protocol.Budget
	Meta    protocol.RunnerMetadata
}

// ClaimNext atomically claims the highest-priority pending attempt,
// transitioning it to running and stamping the worker ID and start time.
// Selection order: highest signal priority first, ties broken by earliest
// signal creation. A signal with a running attempt is never selected. The
// claim is a single conditional UPDATE guarded by status='pending', so
// across any number of concurrent claimants exactly one wins a given row.
// Returns ErrNoWork when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*ClaimedAttempt, error) {
	now := s.now()
	var id string
	err := s.db.QueryRowContext(ctx, `
		UPDATE attempts
		SET status = 'running', worker_id = ?1, started_at = ?2, updated_at = ?2
		WHERE id = (
			SELECT a.id FROM attempts a
			JOIN signals s ON s.id = a.signal_id
			WHERE a.status = 'pending'
			  AND NOT EXISTS (
			        SELECT 1 FROM attempts r
			        WHERE r.signal_id = a.signal_id AND r.status = 'running')
			ORDER BY s.priority DESC, s.created_at ASC, a.created_at ASC
			LIMIT 1
		) AND status = 'pending'
		RETURNING id`,
		workerID, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoWork
	}
	if err != nil {
		return nil, fmt.Errorf("claim next attempt: %w", err)
	}

	attempt, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	signal, err := s.GetSignal(ctx, attempt.SignalID)
	if err != nil {
		return nil, err
	}
	budget, err := protocol.DecodeBudget(attempt.Policy)
	if err != nil {
		return nil, fmt.Errorf("attempt %s: %w", id, err)
	}
	var meta protocol.RunnerMetadata
	if attempt.RunnerMetadata != "" {
		if err := json.Unmarshal([]byte(attempt.RunnerMetadata), &meta); err != nil {
			return nil, fmt.Errorf("attempt %s: unmarshal runner metadata: %w", id, err)
		}
	}
	return &ClaimedAttempt{Attempt: *attempt, Signal: *signal, Budget: budget, Meta: meta}, nil
}

// FinalizeParams carries the terminal outcome of an attempt.
type FinalizeParams struct {
	Status       protocol.AttemptStatus
	ErrorMessage string
	PRURL        string
	BranchName   string
	Summary      protocol.Summary
	SignalState  protocol.SignalState // resulting signal lifecycle state
}

// FinalizeAttempt records the terminal status of a running attempt and
// writes back the owning signal's lifecycle state in the same transaction.
// Only a running attempt can be finalized; terminal attempts are immutable.
func (s *Store) FinalizeAttempt(ctx context.Context, id string, p FinalizeParams) error {
	if !p.Status.Terminal() {
		return fmt.Errorf("finalize attempt %s: %q is not a terminal status", id, p.Status)
	}
	summary, err := json.Marshal(p.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = ?, error_message = ?, pr_url = ?, branch_name = ?,
		    summary = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		string(p.Status), nullable(p.ErrorMessage), nullable(p.PRURL), nullable(p.BranchName),
		string(summary), now, now, id)
	if err != nil {
		return fmt.Errorf("finalize attempt %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attempt %s is not running: %w", id, ErrNotFound)
	}

	if p.SignalState != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE signals SET state = ?, updated_at = ?
			WHERE id = (SELECT signal_id FROM attempts WHERE id = ?)`,
			string(p.SignalState), now, id); err != nil {
			return fmt.Errorf("update signal state for attempt %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

// CancelAttempt marks a pending or running attempt failed with a
// cancellation message and returns the signal to queued. Terminal attempts
// cannot be cancelled.
func (s *Store) CancelAttempt(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = 'failed', error_message = 'cancelled by user', finished_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'running')`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("cancel attempt %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel rows: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attempts WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check attempt %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("attempt %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("attempt %s: %w", id, ErrNotCancellable)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE signals SET state = ?, updated_at = ?
		WHERE id = (SELECT signal_id FROM attempts WHERE id = ?)`,
		string(protocol.SignalQueued), now, id); err != nil {
		return fmt.Errorf("requeue signal for attempt %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel: %w", err)
	}
	return nil
}

// GetAttempt fetches one attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, id string) (*protocol.Attempt, error) {
	row := s.db.QueryRowContext(ctx, selectAttempt+` WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt %s: %w", id, err)
	}
	return a, nil
}

// AttemptFilter selects attempts for listing.
type AttemptFilter struct {
	SignalID string
	Status   protocol.AttemptStatus
	Limit    int
	Page     int // 1-based
}

// ListAttempts returns attempts newest first, plus the total count before
// pagination.
func (s *Store) ListAttempts(ctx context.Context, f AttemptFilter) ([]protocol.Attempt, int, error) {
	var conds []string
	var args []any
	if f.SignalID != "" {
		conds = append(conds, "signal_id = ?")
		args = append(args, f.SignalID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attempts: %w", err)
	}

	query := selectAttempt + where + " ORDER BY created_at DESC, attempt_number DESC"
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, (page-1)*f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []protocol.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, total, nil
}

const selectAttempt = `
	SELECT id, signal_id, attempt_number, status, worker_id, policy, runner_metadata,
	       summary, pr_url, branch_name, error_message, started_at, finished_at,
	       created_at, updated_at
	FROM attempts`

func scanAttempt(r rowScanner) (*protocol.Attempt, error) {
	var a protocol.Attempt
	var status string
	var workerID, prURL, branch, errMsg, startedAt, finishedAt sql.NullString
	if err := r.Scan(&a.ID, &a.SignalID, &a.AttemptNumber, &status, &workerID,
		&a.Policy, &a.RunnerMetadata, &a.Summary, &prURL, &branch, &errMsg,
		&startedAt, &finishedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = protocol.AttemptStatus(status)
	a.WorkerID = fromNull(workerID)
	a.PRURL = fromNull(prURL)
	a.BranchName = fromNull(branch)
	a.ErrorMessage = fromNull(errMsg)
	a.StartedAt = fromNull(startedAt)
	a.FinishedAt = fromNull(finishedAt)
	return &a, nil
}
