package runner //nolint:testpackage // white-box access to drain and gates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"workbench/pkg/protocol"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	sig := protocol.Signal{
		Title: "migrate auth to v2",
		Body:  "The v1 endpoint is deprecated.",
	}
	prompt := BuildPrompt(sig, nil)

	assert.Contains(t, prompt, "**Title**: migrate auth to v2")
	assert.Contains(t, prompt, "The v1 endpoint is deprecated.")
	assert.Contains(t, prompt, "## Instructions")
	assert.NotContains(t, prompt, "## Previous Clarifications")
}

func TestBuildPromptCarriesClarifications(t *testing.T) {
	t.Parallel()

	sig := protocol.Signal{Title: "t"}
	prompt := BuildPrompt(sig, []protocol.AnsweredQuestion{
		{Question: "which branch?", Answer: "main"},
		{Question: "squash?", Answer: "yes"},
	})

	assert.Contains(t, prompt, "## Previous Clarifications")
	assert.Contains(t, prompt, "**Q**: which branch?")
	assert.Contains(t, prompt, "**A**: main")
	// Clarifications precede the standing instructions.
	assert.Less(t,
		strings.Index(prompt, "## Previous Clarifications"),
		strings.Index(prompt, "## Instructions"))
}

func TestBuildPromptOmitsEmptyBody(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(protocol.Signal{Title: "t"}, nil)
	assert.NotContains(t, prompt, "**Description**")
}
