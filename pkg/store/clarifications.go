package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"workbench/pkg/protocol"
)

// InsertClarifications persists the questions raised by a stuck attempt.
// question_id is stable per attempt (q_1, q_2, ...) so that re-inserting
// the same batch is rejected by the unique constraint rather than
// duplicated.
func (s *Store) InsertClarifications(ctx context.Context, attemptID string, questions []protocol.Question) ([]protocol.Clarification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert clarifications: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	out := make([]protocol.Clarification, 0, len(questions))
	for i, q := range questions {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("marshal question options: %w", err)
		}
		c := protocol.Clarification{
			ID:              uuid.NewString(),
			AttemptID:       attemptID,
			QuestionID:      fmt.Sprintf("q_%d", i+1),
			QuestionText:    q.Question,
			QuestionContext: q.Header,
			Options:         string(opts),
			MultiSelect:     q.MultiSelect,
			DefaultAnswer:   q.Default,
			CreatedAt:       now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clarifications (id, attempt_id, question_id, question_text, question_context,
			                            options, multi_select, default_answer, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.AttemptID, c.QuestionID, c.QuestionText, nullable(c.QuestionContext),
			c.Options, c.MultiSelect, nullable(c.DefaultAnswer), now); err != nil {
			return nil, fmt.Errorf("insert clarification %s/%s: %w", attemptID, c.QuestionID, err)
		}
		out = append(out, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert clarifications: %w", err)
	}
	return out, nil
}

// AnswerClarification records a human answer. The update is conditional on
// the row being unanswered: answering twice is rejected with
// ErrAlreadyAnswered, never silently overwritten.
func (s *Store) AnswerClarification(ctx context.Context, id, answer, answeredBy string) error {
	if answer == "" {
		return fmt.Errorf("answer text must not be empty")
	}
	return s.answer(ctx, id, `
		UPDATE clarifications
		SET answer_text = ?, answered_by = ?, answered_at = ?
		WHERE id = ? AND answer_text IS NULL AND accepted_default = 0`,
		answer, nullable(answeredBy), s.now(), id)
}

// AcceptDefault marks the clarification's suggested default as the
// effective answer. Fails with ErrNoDefault when the question carried no
// default, and ErrAlreadyAnswered when already answered.
func (s *Store) AcceptDefault(ctx context.Context, id, answeredBy string) error {
	c, err := s.GetClarification(ctx, id)
	if err != nil {
		return err
	}
	if c.DefaultAnswer == "" {
		return fmt.Errorf("clarification %s: %w", id, ErrNoDefault)
	}
	return s.answer(ctx, id, `
		UPDATE clarifications
		SET accepted_default = 1, answered_by = ?, answered_at = ?
		WHERE id = ? AND answer_text IS NULL AND accepted_default = 0`,
		nullable(answeredBy), s.now(), id)
}

// answer runs a conditional answer update and maps a zero-row result to
// ErrNotFound or ErrAlreadyAnswered.
func (s *Store) answer(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("answer clarification %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("answer rows: %w", err)
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM clarifications WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check clarification %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("clarification %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("clarification %s: %w", id, ErrAlreadyAnswered)
	}
	return nil
}

// GetClarification fetches one clarification by ID.
func (s *Store) GetClarification(ctx context.Context, id string) (*protocol.Clarification, error) {
	row := s.db.QueryRowContext(ctx, selectClarification+` WHERE id = ?`, id)
	c, err := scanClarification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("clarification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get clarification %s: %w", id, err)
	}
	return c, nil
}

// ListClarifications returns all clarifications for an attempt in creation
// order.
func (s *Store) ListClarifications(ctx context.Context, attemptID string) ([]protocol.Clarification, error) {
	rows, err := s.db.QueryContext(ctx,
		selectClarification+` WHERE attempt_id = ? ORDER BY question_id ASC`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list clarifications for %s: %w", attemptID, err)
	}
	return collectClarifications(rows)
}

// ListPendingClarifications returns every unanswered clarification across
// all attempts, newest first.
func (s *Store) ListPendingClarifications(ctx context.Context) ([]protocol.Clarification, error) {
	rows, err := s.db.QueryContext(ctx,
		selectClarification+` WHERE answer_text IS NULL AND accepted_default = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list pending clarifications: %w", err)
	}
	return collectClarifications(rows)
}

// UnansweredCount returns how many clarifications on an attempt still await
// an answer.
func (s *Store) UnansweredCount(ctx context.Context, attemptID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM clarifications
		WHERE attempt_id = ? AND answer_text IS NULL AND accepted_default = 0`,
		attemptID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unanswered for %s: %w", attemptID, err)
	}
	return n, nil
}

const selectClarification = `
	SELECT id, attempt_id, question_id, question_text, question_context, options,
	       multi_select, default_answer, accepted_default, answer_text, answered_by,
	       answered_at, created_at
	FROM clarifications`

func scanClarification(r rowScanner) (*protocol.Clarification, error) {
	var c protocol.Clarification
	var qctx, def, answer, by, at sql.NullString
	if err := r.Scan(&c.ID, &c.AttemptID, &c.QuestionID, &c.QuestionText, &qctx,
		&c.Options, &c.MultiSelect, &def, &c.AcceptedDefault, &answer, &by, &at,
		&c.CreatedAt); err != nil {
		return nil, err
	}
	c.QuestionContext = fromNull(qctx)
	c.DefaultAnswer = fromNull(def)
	c.AnswerText = fromNull(answer)
	c.AnsweredBy = fromNull(by)
	c.AnsweredAt = fromNull(at)
	return &c, nil
}

func collectClarifications(rows *sql.Rows) ([]protocol.Clarification, error) {
	defer rows.Close()
	var out []protocol.Clarification
	for rows.Next() {
		c, err := scanClarification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clarification: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clarifications: %w", err)
	}
	return out, nil
}
