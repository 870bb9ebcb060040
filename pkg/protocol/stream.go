package protocol

import (
	"encoding/json"
	"fmt"
)

// Agent event types. The agent process emits one JSON object per stdout
// line; Type selects which payload fields are meaningful. EventQuestion and
// EventResult carry engine-level meaning; every other type is opaque to the
// engine and forwarded verbatim into the log pipeline.
const (
	EventMessage     = "message"
	EventToolCall    = "tool_call"
	EventToolResult  = "tool_result"
	EventQuestion    = "question"
	EventInterrupted = "interrupted"
	EventResult      = "result"
)

// AgentEvent is one line of the agent's structured output stream.
type AgentEvent struct {
	Type string `json:"type"`

	// message
	Text string `json:"text,omitempty"`

	// tool_call / tool_result
	ToolID    string          `json:"tool_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Content   string          `json:"content,omitempty"`

	// question
	Questions []Question `json:"questions,omitempty"`

	// result
	IsError bool          `json:"is_error,omitempty"`
	Error   string        `json:"error,omitempty"`
	Result  *ResultDetail `json:"result,omitempty"`
}

// Question is one question inside an EventQuestion event.
type Question struct {
	Question    string           `json:"question"`
	Header      string           `json:"header,omitempty"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multi_select,omitempty"`
	Default     string           `json:"default,omitempty"`
}

// QuestionOption is one structured choice offered with a question.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// ResultDetail carries the final-result metrics reported by the agent.
type ResultDetail struct {
	SessionID    string  `json:"session_id,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
	Turns        int     `json:"turns,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
}

// ParseAgentEvent decodes one line of agent output. Lines that are not
// valid JSON objects are rejected; the runner treats them as opaque events.
func ParseAgentEvent(line []byte) (AgentEvent, error) {
	var ev AgentEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return AgentEvent{}, fmt.Errorf("parse agent event: %w", err)
	}
	if ev.Type == "" {
		return AgentEvent{}, fmt.Errorf("agent event missing type")
	}
	return ev, nil
}

// LogKindFor maps an agent event type to the log entry kind it is stored
// under. Unknown event types are stored as KindEvent with the payload
// forwarded verbatim.
func LogKindFor(eventType string) LogKind {
	switch eventType {
	case EventMessage:
		return KindMessage
	case EventToolResult:
		return KindToolResult
	case EventResult:
		return KindResult
	case EventInterrupted:
		return KindInterrupted
	default:
		return KindEvent
	}
}
