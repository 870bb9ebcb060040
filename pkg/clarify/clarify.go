// Package clarify implements the clarification and retry manager: it
// persists the questions a stuck attempt raised, accepts human answers
// exactly once, and turns a fully-answered attempt into a fresh pending
// attempt carrying the answers as context.
package clarify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"workbench/pkg/protocol"
	"workbench/pkg/store"
)

// Sentinel errors for retry preconditions.
var (
	ErrUnanswered   = errors.New("attempt has unanswered clarifications")
	ErrNotRetryable = errors.New("attempt is not in needs_human status")
)

// Manager coordinates clarifications and retries against the job store.
type Manager struct {
	store *store.Store
}

// NewManager creates a Manager.
func NewManager(st *store.Store) *Manager {
	return &Manager{store: st}
}

// RecordQuestions persists the questions raised by a stuck attempt. Called
// by the dispatcher when an attempt classifies as needs_human.
func (m *Manager) RecordQuestions(ctx context.Context, attemptID string, questions []protocol.Question) ([]protocol.Clarification, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("attempt %s: no questions to record", attemptID)
	}
	return m.store.InsertClarifications(ctx, attemptID, questions)
}

// SubmitAnswer records a human answer on one clarification. Re-submitting
// an already-answered clarification is rejected with
// store.ErrAlreadyAnswered; nothing is overwritten.
func (m *Manager) SubmitAnswer(ctx context.Context, clarificationID, answer, answeredBy string) error {
	return m.store.AnswerClarification(ctx, clarificationID, answer, answeredBy)
}

// AcceptDefault marks the clarification's suggested default as its answer.
func (m *Manager) AcceptDefault(ctx context.Context, clarificationID, answeredBy string) error {
	return m.store.AcceptDefault(ctx, clarificationID, answeredBy)
}

// Retry creates a follow-up attempt for the signal behind a needs_human
// attempt. Preconditions: the attempt is needs_human and every one of its
// clarifications is answered; otherwise no attempt is created. The new
// attempt gets the next attempt number, inherits the budget, carries all
// answered Q/A pairs as context, and is claimable by the dispatcher like
// any other pending attempt (per-signal exclusivity included).
func (m *Manager) Retry(ctx context.Context, attemptID string) (*protocol.Attempt, error) {
	attempt, err := m.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != protocol.AttemptNeedsHuman {
		return nil, fmt.Errorf("attempt %s has status %s: %w", attemptID, attempt.Status, ErrNotRetryable)
	}

	unanswered, err := m.store.UnansweredCount(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if unanswered > 0 {
		return nil, fmt.Errorf("attempt %s has %d unanswered clarifications: %w",
			attemptID, unanswered, ErrUnanswered)
	}

	clarifications, err := m.store.ListClarifications(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	var meta protocol.RunnerMetadata
	if attempt.RunnerMetadata != "" {
		if err := json.Unmarshal([]byte(attempt.RunnerMetadata), &meta); err != nil {
			return nil, fmt.Errorf("attempt %s: unmarshal runner metadata: %w", attemptID, err)
		}
	}
	for _, c := range clarifications {
		meta.Clarifications = append(meta.Clarifications, protocol.AnsweredQuestion{
			Question: c.QuestionText,
			Answer:   c.EffectiveAnswer(),
		})
	}
	meta.RetryOf = attemptID

	budget, err := protocol.DecodeBudget(attempt.Policy)
	if err != nil {
		return nil, fmt.Errorf("attempt %s: %w", attemptID, err)
	}

	return m.store.CreateAttempt(ctx, attempt.SignalID, budget, meta)
}

// RetryByClarification resolves the clarification's owning attempt and
// retries it.
func (m *Manager) RetryByClarification(ctx context.Context, clarificationID string) (*protocol.Attempt, error) {
	c, err := m.store.GetClarification(ctx, clarificationID)
	if err != nil {
		return nil, err
	}
	return m.Retry(ctx, c.AttemptID)
}
