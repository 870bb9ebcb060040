package runner

import (
	"fmt"
	"strings"

	"workbench/pkg/protocol"
)

// BuildPrompt constructs the task content handed to the agent: the signal's
// title and body, prior answered clarifications when retrying, and the
// standing instructions.
func BuildPrompt(sig protocol.Signal, clarifications []protocol.AnsweredQuestion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Task\n**Title**: %s\n", sig.Title)
	if sig.Body != "" {
		fmt.Fprintf(&b, "\n**Description**:\n%s\n", sig.Body)
	}

	if len(clarifications) > 0 {
		b.WriteString("\n## Previous Clarifications\n")
		for _, c := range clarifications {
			fmt.Fprintf(&b, "**Q**: %s\n**A**: %s\n\n", c.Question, c.Answer)
		}
	}

	b.WriteString(`
## Instructions
1. Analyze the task and implement the required changes
2. Run any relevant tests to verify your changes
3. If you encounter blocking issues, emit a question event and stop

## Success Criteria
- Complete the requested task
- Ensure tests pass (if available)
- Keep changes focused and minimal
`)

	return b.String()
}
