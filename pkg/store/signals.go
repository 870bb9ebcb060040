package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"workbench/pkg/protocol"
)

// UpsertSignal inserts a signal or, when a row with the same (repo,
// issue_number) exists, refreshes its content and priority without touching
// lifecycle state. Returns the stored signal's ID.
func (s *Store) UpsertSignal(ctx context.Context, sig protocol.Signal) (string, error) {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Source == "" {
		sig.Source = "github"
	}
	if sig.Metadata == "" {
		sig.Metadata = "{}"
	}
	if sig.State == "" {
		sig.State = protocol.SignalPending
	}
	if !sig.State.Valid() {
		return "", fmt.Errorf("invalid signal state %q", sig.State)
	}

	now := s.now()
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO signals (id, source, repo, issue_number, title, body, metadata, priority, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo, issue_number) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			metadata = excluded.metadata,
			priority = excluded.priority,
			updated_at = excluded.updated_at
		RETURNING id`,
		sig.ID, sig.Source, sig.Repo, sig.IssueNumber, sig.Title, nullable(sig.Body),
		sig.Metadata, sig.Priority, string(sig.State), now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert signal %s#%d: %w", sig.Repo, sig.IssueNumber, err)
	}
	return id, nil
}

// GetSignal fetches one signal by ID.
func (s *Store) GetSignal(ctx context.Context, id string) (*protocol.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, repo, issue_number, title, body, metadata, priority, state, created_at, updated_at
		FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	return sig, nil
}

// SetSignalState transitions a signal's lifecycle state.
func (s *Store) SetSignalState(ctx context.Context, id string, state protocol.SignalState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid signal state %q", state)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), s.now(), id)
	if err != nil {
		return fmt.Errorf("set signal %s state %s: %w", id, state, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set signal state rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	return nil
}

// SignalFilter selects signals for listing. Zero values match everything.
type SignalFilter struct {
	State protocol.SignalState
	Repo  string // substring match
	Limit int    // 0 = no limit
	Page  int    // 1-based; only meaningful with Limit
}

// ListSignals returns signals ordered by priority (highest first), ties
// broken by earliest creation, plus the total count before pagination.
func (s *Store) ListSignals(ctx context.Context, f SignalFilter) ([]protocol.Signal, int, error) {
	var conds []string
	var args []any
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(f.State))
	}
	if f.Repo != "" {
		conds = append(conds, "repo LIKE ?")
		args = append(args, "%"+f.Repo+"%")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM signals"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count signals: %w", err)
	}

	query := `
		SELECT id, source, repo, issue_number, title, body, metadata, priority, state, created_at, updated_at
		FROM signals` + where + ` ORDER BY priority DESC, created_at ASC`
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, (page-1)*f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []protocol.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, *sig)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate signals: %w", err)
	}
	return out, total, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(r rowScanner) (*protocol.Signal, error) {
	var sig protocol.Signal
	var body sql.NullString
	var state string
	if err := r.Scan(&sig.ID, &sig.Source, &sig.Repo, &sig.IssueNumber, &sig.Title,
		&body, &sig.Metadata, &sig.Priority, &state, &sig.CreatedAt, &sig.UpdatedAt); err != nil {
		return nil, err
	}
	sig.Body = fromNull(body)
	sig.State = protocol.SignalState(state)
	return &sig, nil
}
