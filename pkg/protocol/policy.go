package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Budget is the resource policy attached to an attempt at creation time.
// Wall clock, tool calls, and turns are hard gates: exceeding any of them
// cancels the run. Diff lines and files touched are soft gates: exceeding
// them is recorded as a risk flag but does not abort the attempt.
type Budget struct {
	WallClock    Duration `json:"wall_clock"`
	ToolCalls    int      `json:"tool_calls"`
	Turns        int      `json:"turns"`
	DiffLines    int      `json:"diff_lines"`
	FilesTouched int      `json:"files_touched"`
}

// DefaultBudget mirrors the runner defaults: 20 minute wall clock, 200 tool
// calls, 50 turns, with 800-line / 40-file soft gates.
func DefaultBudget() Budget {
	return Budget{
		WallClock:    Duration(20 * time.Minute),
		ToolCalls:    200,
		Turns:        50,
		DiffLines:    800,
		FilesTouched: 40,
	}
}

// EncodeBudget serializes a budget for the attempts.policy column.
func EncodeBudget(b Budget) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal budget: %w", err)
	}
	return string(data), nil
}

// DecodeBudget parses the attempts.policy column. An empty or "{}" policy
// yields the default budget.
func DecodeBudget(s string) (Budget, error) {
	b := DefaultBudget()
	if s == "" || s == "{}" {
		return b, nil
	}
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return Budget{}, fmt.Errorf("unmarshal budget: %w", err)
	}
	return b, nil
}

// Duration wraps time.Duration with JSON encoding as a Go duration string
// ("20m", "1h30m"), matching the config file syntax.
type Duration time.Duration

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("parse duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }
