// Package protocol defines the durable data model shared by the store,
// dispatcher, runner, and CLI: SQLite schema, row structs, status enums,
// budget policy, and the wire format of the agent event stream.
package protocol

import (
	"encoding/json"
	"fmt"
)

// SignalState is the lifecycle state of a signal.
type SignalState string

// Signal lifecycle states.
const (
	SignalPending    SignalState = "pending"     // newly ingested, awaiting triage
	SignalQueued     SignalState = "queued"      // ready for processing
	SignalInProgress SignalState = "in_progress" // an attempt is pending or running
	SignalCompleted  SignalState = "completed"   // resolved by a successful or noop attempt
	SignalBlocked    SignalState = "blocked"     // waiting on a human answer
	SignalSkipped    SignalState = "skipped"     // marked not worth attempting
	SignalArchived   SignalState = "archived"    // historical record
)

// Valid reports whether s is a known signal state.
func (s SignalState) Valid() bool {
	switch s {
	case SignalPending, SignalQueued, SignalInProgress, SignalCompleted,
		SignalBlocked, SignalSkipped, SignalArchived:
		return true
	}
	return false
}

// AttemptStatus is the status of an attempt.
type AttemptStatus string

// Attempt statuses. success, failed, and noop are terminal. needs_human is
// terminal for the attempt row itself; a retry creates a new attempt.
const (
	AttemptPending    AttemptStatus = "pending"
	AttemptRunning    AttemptStatus = "running"
	AttemptSuccess    AttemptStatus = "success"
	AttemptNeedsHuman AttemptStatus = "needs_human"
	AttemptFailed     AttemptStatus = "failed"
	AttemptNoop       AttemptStatus = "noop"
)

// Valid reports whether s is a known attempt status.
func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptPending, AttemptRunning, AttemptSuccess, AttemptNeedsHuman,
		AttemptFailed, AttemptNoop:
		return true
	}
	return false
}

// Terminal reports whether an attempt in this status will never change again.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptSuccess, AttemptNeedsHuman, AttemptFailed, AttemptNoop:
		return true
	}
	return false
}

// LogKind classifies a log entry.
type LogKind string

// Log entry kinds. Agent events with no engine-level meaning are stored as
// KindEvent with their payload forwarded verbatim.
const (
	KindEvent       LogKind = "event"
	KindPrompt      LogKind = "prompt"
	KindMessage     LogKind = "message"
	KindToolResult  LogKind = "tool_result"
	KindResult      LogKind = "result"
	KindInterrupted LogKind = "interrupted"
)

// Signal represents a row in the signals table.
type Signal struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	Repo        string      `json:"repo"`
	IssueNumber int         `json:"issue_number"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Metadata    string      `json:"metadata"`
	Priority    int         `json:"priority"`
	State       SignalState `json:"state"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

// URL returns the tracker URL for the signal.
func (s Signal) URL() string {
	return fmt.Sprintf("https://github.com/%s/issues/%d", s.Repo, s.IssueNumber)
}

// Attempt represents a row in the attempts table.
type Attempt struct {
	ID             string        `json:"id"`
	SignalID       string        `json:"signal_id"`
	AttemptNumber  int           `json:"attempt_number"`
	Status         AttemptStatus `json:"status"`
	WorkerID       string        `json:"worker_id,omitempty"`
	Policy         string        `json:"policy"`           // Budget JSON, immutable once running
	RunnerMetadata string        `json:"runner_metadata"`  // carried clarifications, retry_of
	Summary        string        `json:"summary"`          // Summary JSON, set at finalization
	PRURL          string        `json:"pr_url,omitempty"` // resulting artifact reference
	BranchName     string        `json:"branch_name,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	StartedAt      string        `json:"started_at,omitempty"`
	FinishedAt     string        `json:"finished_at,omitempty"`
	CreatedAt      string        `json:"created_at"`
	UpdatedAt      string        `json:"updated_at"`
}

// Clarification represents a row in the clarifications table.
type Clarification struct {
	ID              string `json:"id"`
	AttemptID       string `json:"attempt_id"`
	QuestionID      string `json:"question_id"`
	QuestionText    string `json:"question_text"`
	QuestionContext string `json:"question_context,omitempty"`
	Options         string `json:"options"` // JSON array of QuestionOption
	MultiSelect     bool   `json:"multi_select"`
	DefaultAnswer   string `json:"default_answer,omitempty"`
	AcceptedDefault bool   `json:"accepted_default"`
	AnswerText      string `json:"answer_text,omitempty"`
	AnsweredBy      string `json:"answered_by,omitempty"`
	AnsweredAt      string `json:"answered_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// IsAnswered reports whether the clarification has an effective answer.
func (c Clarification) IsAnswered() bool {
	return c.AnswerText != "" || c.AcceptedDefault
}

// EffectiveAnswer returns the human answer, or the default when it was
// explicitly accepted. Empty when unanswered.
func (c Clarification) EffectiveAnswer() string {
	if c.AnswerText != "" {
		return c.AnswerText
	}
	if c.AcceptedDefault {
		return c.DefaultAnswer
	}
	return ""
}

// LogEntry represents a row in the log_entries table.
type LogEntry struct {
	ID        int64   `json:"id"`
	AttemptID string  `json:"attempt_id"`
	Seq       int64   `json:"seq"`
	Kind      LogKind `json:"kind"`
	Payload   string  `json:"payload"`
	IsFinal   bool    `json:"is_final"`
	CreatedAt string  `json:"created_at"`
}

// AnsweredQuestion is one prior Q/A pair carried into a retry attempt.
type AnsweredQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// RunnerMetadata is the decoded attempts.runner_metadata column.
type RunnerMetadata struct {
	Clarifications []AnsweredQuestion `json:"clarifications,omitempty"`
	RetryOf        string             `json:"retry_of,omitempty"`
	SessionID      string             `json:"session_id,omitempty"`
}

// Summary is the decoded attempts.summary column: what an attempt did and
// what it cost, written once at finalization.
type Summary struct {
	FilesTouched []string `json:"files_touched,omitempty"`
	Assumptions  []string `json:"assumptions,omitempty"`
	RiskFlags    []string `json:"risk_flags,omitempty"`
	Metrics      Metrics  `json:"metrics"`
}

// DecodeSummary parses the attempts.summary column. Empty means the attempt
// has not been finalized yet.
func DecodeSummary(s string) (Summary, error) {
	var out Summary
	if s == "" || s == "{}" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return out, nil
}

// Metrics holds execution cost counters collected by the runner.
type Metrics struct {
	ToolCalls    int     `json:"tool_calls"`
	Turns        int     `json:"turns"`
	CostUSD      float64 `json:"cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
}
