package protocol

// SchemaDDL defines the SQLite schema for the workbench job store.
// Tables: signals, attempts, clarifications, log_entries.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Work candidates supplied by the ingestion collaborator
CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL DEFAULT 'github',
    repo TEXT NOT NULL,
    issue_number INTEGER NOT NULL,
    title TEXT NOT NULL,
    body TEXT,
    metadata TEXT NOT NULL DEFAULT '{}',
    priority INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    UNIQUE (repo, issue_number)
);

CREATE INDEX IF NOT EXISTS idx_signals_state ON signals(state);

-- One bounded execution run against a signal
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    signal_id TEXT NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
    attempt_number INTEGER NOT NULL DEFAULT 1,
    status TEXT NOT NULL DEFAULT 'pending',
    worker_id TEXT,
    policy TEXT NOT NULL DEFAULT '{}',
    runner_metadata TEXT NOT NULL DEFAULT '{}',
    summary TEXT NOT NULL DEFAULT '{}',
    pr_url TEXT,
    branch_name TEXT,
    error_message TEXT,
    started_at TEXT,
    finished_at TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    UNIQUE (signal_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_attempts_signal ON attempts(signal_id);
CREATE INDEX IF NOT EXISTS idx_attempts_status ON attempts(status);

-- Questions raised by a stuck attempt, answered exactly once by a human
CREATE TABLE IF NOT EXISTS clarifications (
    id TEXT PRIMARY KEY,
    attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
    question_id TEXT NOT NULL,
    question_text TEXT NOT NULL,
    question_context TEXT,
    options TEXT NOT NULL DEFAULT '[]',
    multi_select INTEGER NOT NULL DEFAULT 0,
    default_answer TEXT,
    accepted_default INTEGER NOT NULL DEFAULT 0,
    answer_text TEXT,
    answered_by TEXT,
    answered_at TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    UNIQUE (attempt_id, question_id)
);

CREATE INDEX IF NOT EXISTS idx_clarifications_attempt ON clarifications(attempt_id);

-- Append-only per-attempt execution log; seq is gapless starting at 1
CREATE TABLE IF NOT EXISTS log_entries (
    id INTEGER PRIMARY KEY,
    attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    kind TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    is_final INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    UNIQUE (attempt_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_log_entries_attempt ON log_entries(attempt_id, seq);
`
