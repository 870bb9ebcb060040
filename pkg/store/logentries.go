package store

import (
	"context"
	"fmt"

	"workbench/pkg/protocol"
)

// AppendLogEntry appends one entry to an attempt's log and returns its
// sequence number. The next sequence is computed inside the INSERT itself,
// so concurrent appenders cannot produce gaps or duplicates: SQLite
// serializes the statement and the UNIQUE(attempt_id, seq) constraint backs
// it up.
func (s *Store) AppendLogEntry(ctx context.Context, attemptID string, kind protocol.LogKind, payload string, isFinal bool) (int64, error) {
	if payload == "" {
		payload = "{}"
	}
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO log_entries (attempt_id, seq, kind, payload, is_final, created_at)
		VALUES (?1,
		        (SELECT COALESCE(MAX(seq), 0) + 1 FROM log_entries WHERE attempt_id = ?1),
		        ?2, ?3, ?4, ?5)
		RETURNING seq`,
		attemptID, string(kind), payload, isFinal, s.now()).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append log entry for %s: %w", attemptID, err)
	}
	return seq, nil
}

// ReadLogEntries returns the entries of an attempt with seq > sinceSeq in
// sequence order. limit 0 means no limit.
func (s *Store) ReadLogEntries(ctx context.Context, attemptID string, sinceSeq int64, limit int) ([]protocol.LogEntry, error) {
	query := `
		SELECT id, attempt_id, seq, kind, payload, is_final, created_at
		FROM log_entries
		WHERE attempt_id = ? AND seq > ?
		ORDER BY seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, attemptID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("read log entries for %s: %w", attemptID, err)
	}
	defer rows.Close()

	var out []protocol.LogEntry
	for rows.Next() {
		var e protocol.LogEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.Seq, &kind, &e.Payload, &e.IsFinal, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Kind = protocol.LogKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return out, nil
}
