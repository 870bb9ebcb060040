// Package classifier maps a raw runner outcome to a terminal attempt
// status. The mapping is deterministic and evaluated in a fixed precedence
// order; an outcome matching no rule is surfaced as ErrUnclassifiable, never
// silently defaulted.
package classifier

import (
	"errors"
	"fmt"
	"regexp"

	"workbench/pkg/protocol"
	"workbench/pkg/runner"
)

// ErrUnclassifiable marks a raw outcome that matches no classification
// rule. It is a classifier defect signal, not an attempt status.
var ErrUnclassifiable = errors.New("outcome matches no classification rule")

// prURLPattern extracts the artifact reference (an opened pull request)
// from the agent's final text.
var prURLPattern = regexp.MustCompile(`https://github\.com/[^/\s]+/[^/\s]+/pull/\d+`)

// assumptionPatterns extract assumptions the agent reported in its final text.
var assumptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:I(?:'m| am) assuming|Assumption:|Assumed:)\s*(.+)`),
	regexp.MustCompile(`(?i)(?:I(?:'ll| will) assume)\s*(.+)`),
}

// maxAssumptions caps how many extracted assumptions are kept.
const maxAssumptions = 10

// Classification is the classifier's verdict on one attempt.
type Classification struct {
	Status       protocol.AttemptStatus
	ErrorMessage string
	PRURL        string
	Questions    []protocol.Question
	RiskFlags    []string
	Assumptions  []string
	FilesTouched []string
}

// Classify maps a raw outcome to a terminal status, in precedence order:
//
//  1. Hard budget violation: failed, detail names the gate and its limit.
//  2. Process crash or error result with no usable output: failed, detail
//     preserved verbatim.
//  3. Unanswered questions and no artifact: needs_human.
//  4. Normal completion, no artifact, no changes: noop.
//  5. Normal completion with an artifact or workspace changes: success.
//
// A cancelled run classifies as failed (rule 2: the run did not complete).
// An interrupted marker without any question is failed rather than
// needs_human: there is nothing for a human to answer. Soft gates add risk
// flags to rules 4-5 without changing the status. Anything not covered
// returns ErrUnclassifiable.
func Classify(out runner.RawOutcome, budget protocol.Budget) (Classification, error) {
	switch out.Exit {
	case runner.ExitBudget:
		if out.Breach == nil {
			return Classification{}, fmt.Errorf("budget exit without breach detail: %w", ErrUnclassifiable)
		}
		return Classification{
			Status:       protocol.AttemptFailed,
			ErrorMessage: out.ErrorDetail,
			RiskFlags:    []string{fmt.Sprintf("BUDGET_EXCEEDED:%s", out.Breach.Gate)},
		}, nil

	case runner.ExitCrashed:
		return Classification{
			Status:       protocol.AttemptFailed,
			ErrorMessage: crashDetail(out),
			RiskFlags:    []string{"EXECUTION_ERROR"},
		}, nil

	case runner.ExitCancelled:
		return Classification{
			Status:       protocol.AttemptFailed,
			ErrorMessage: "run cancelled",
			RiskFlags:    []string{"CANCELLED"},
		}, nil

	case runner.ExitCompleted:
		return classifyCompleted(out, budget)

	default:
		return Classification{}, fmt.Errorf("unknown exit condition %q: %w", out.Exit, ErrUnclassifiable)
	}
}

// classifyCompleted handles rules 2b-5 for a normally-exited process.
func classifyCompleted(out runner.RawOutcome, budget protocol.Budget) (Classification, error) {
	prURL := prURLPattern.FindString(out.FinalText)

	// Error result with no recognizable artifact is a process failure.
	if out.IsError {
		detail := out.ErrorDetail
		if detail == "" {
			detail = "agent reported an error result"
		}
		return Classification{
			Status:       protocol.AttemptFailed,
			ErrorMessage: detail,
			RiskFlags:    []string{"EXECUTION_ERROR"},
		}, nil
	}

	// Unanswered questions with no artifact: a human must unblock.
	if len(out.Questions) > 0 && prURL == "" {
		return Classification{
			Status:       protocol.AttemptNeedsHuman,
			Questions:    out.Questions,
			Assumptions:  extractAssumptions(out.FinalText),
			FilesTouched: out.Diff.FilesTouched,
		}, nil
	}

	// An interrupted marker with no question leaves nothing to answer.
	if out.Interrupted {
		return Classification{
			Status:       protocol.AttemptFailed,
			ErrorMessage: "agent interrupted without raising a question",
			RiskFlags:    []string{"INTERRUPTED"},
		}, nil
	}

	// A clean exit that never produced a result event is ambiguous: noop
	// and success are indistinguishable. Surface it instead of guessing.
	if !out.ResultSeen {
		return Classification{}, fmt.Errorf("attempt %s: clean exit with no result event: %w",
			out.AttemptID, ErrUnclassifiable)
	}

	riskFlags := softGateFlags(out.Diff, budget)

	if prURL == "" && out.Diff.FilesCount() == 0 {
		return Classification{
			Status:      protocol.AttemptNoop,
			RiskFlags:   riskFlags,
			Assumptions: extractAssumptions(out.FinalText),
		}, nil
	}

	// Changes without an opened change request still count as success, but
	// the missing artifact is flagged for review.
	if prURL == "" {
		riskFlags = append(riskFlags, "NO_ARTIFACT")
	}
	return Classification{
		Status:       protocol.AttemptSuccess,
		PRURL:        prURL,
		RiskFlags:    riskFlags,
		Assumptions:  extractAssumptions(out.FinalText),
		FilesTouched: out.Diff.FilesTouched,
	}, nil
}

// softGateFlags records soft-gate breaches as risk flags. Soft gates never
// change the status.
func softGateFlags(diff runner.DiffStats, budget protocol.Budget) []string {
	var flags []string
	if budget.DiffLines > 0 && diff.TotalLines() > budget.DiffLines {
		flags = append(flags, fmt.Sprintf("DIFF_SIZE_EXCEEDED:%d", diff.TotalLines()))
	}
	if budget.FilesTouched > 0 && diff.FilesCount() > budget.FilesTouched {
		flags = append(flags, fmt.Sprintf("FILES_EXCEEDED:%d", diff.FilesCount()))
	}
	return flags
}

func crashDetail(out runner.RawOutcome) string {
	if out.ErrorDetail != "" {
		return out.ErrorDetail
	}
	return "agent process crashed"
}

// extractAssumptions pulls reported assumptions out of the final text.
func extractAssumptions(text string) []string {
	var out []string
	for _, p := range assumptionPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if len(out) >= maxAssumptions {
				return out
			}
			out = append(out, m[1])
		}
	}
	return out
}
