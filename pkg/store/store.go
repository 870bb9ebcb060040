// Package store implements the persistent job store over SQLite. It is the
// only shared mutable resource in the engine: claiming, per-signal
// exclusivity, and answer submission are all expressed as atomic
// conditional updates so that workers in separate processes coordinate
// through the database rather than in-process locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"workbench/pkg/protocol"
)

// Sentinel errors. Claim contention is benign: a losing claimant observes
// ErrNoWork, not a failure.
var (
	ErrNotFound        = errors.New("not found")
	ErrNoWork          = errors.New("no claimable work")
	ErrSignalBusy      = errors.New("signal already has a pending or running attempt")
	ErrAlreadyAnswered = errors.New("clarification already answered")
	ErrNoDefault       = errors.New("clarification has no default answer")
	ErrNotCancellable  = errors.New("attempt is not pending or running")
)

// timeFormat matches the strftime default used in the schema so that
// lexicographic ordering of stored timestamps equals chronological ordering.
const timeFormat = "2006-01-02T15:04:05.000Z"

// Store wraps a SQLite database holding signals, attempts, clarifications,
// and log entries.
type Store struct {
	db *sql.DB

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// Open opens (or creates) the job store at path and enforces
// production-safe defaults: WAL journal mode and a 5-second busy timeout.
// The schema is applied before returning.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Pragmas below are per-connection; pin the pool to one connection so
	// they hold for every statement.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema on %s: %w", path, err)
	}

	return New(db), nil
}

// New wraps an already-open database. The caller is responsible for the
// schema having been applied.
func New(db *sql.DB) *Store {
	return &Store{db: db, nowFunc: time.Now}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetNowFunc overrides the clock.
//
//workbench:testonly
func (s *Store) SetNowFunc(f func() time.Time) { s.nowFunc = f }

// now returns the current time formatted for storage.
func (s *Store) now() string {
	return s.nowFunc().UTC().Format(timeFormat)
}

// nullable converts an empty string to a NULL-able value.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// fromNull converts a scanned nullable column back to a string.
func fromNull(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}
