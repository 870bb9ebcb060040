package runner

import "workbench/pkg/protocol"

// ExitCondition describes how the agent process ended.
type ExitCondition string

// Exit conditions.
const (
	ExitCompleted ExitCondition = "completed" // process exited normally
	ExitCrashed   ExitCondition = "crashed"   // non-zero exit or unusable output
	ExitBudget    ExitCondition = "budget"    // hard budget gate cancelled the run
	ExitCancelled ExitCondition = "cancelled" // caller cancelled the run
)

// Hard budget gate names, used in breach details and risk flags.
const (
	GateWallClock = "wall_clock"
	GateToolCalls = "tool_calls"
	GateTurns     = "turns"
)

// BudgetBreach records which hard gate was exceeded and by how much.
type BudgetBreach struct {
	Gate     string `json:"gate"`
	Limit    int64  `json:"limit"`
	Observed int64  `json:"observed"`
}

// RawOutcome is everything the runner observed about one attempt execution.
// The classifier maps it to a terminal status; the runner itself never
// decides status.
type RawOutcome struct {
	AttemptID   string
	Exit        ExitCondition
	Breach      *BudgetBreach // set when Exit == ExitBudget
	Questions   []protocol.Question
	Interrupted bool // agent emitted an explicit interrupted marker
	ResultSeen  bool // agent emitted a final result event
	IsError     bool // result event carried the error flag
	ErrorDetail string
	FinalText   string // concatenated assistant text, result text last
	Metrics     protocol.Metrics
	Diff        DiffStats // collected only on normal completion
}
