package runner //nolint:testpackage // white-box access to numstat parsing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumstat(t *testing.T) {
	t.Parallel()

	out := "12\t3\tpkg/auth/auth.go\n0\t7\tpkg/auth/legacy.go\n-\t-\tassets/logo.png\n"
	stats := parseNumstat(out)

	assert.Equal(t, 12, stats.LinesAdded)
	assert.Equal(t, 10, stats.LinesDeleted)
	assert.Equal(t, 22, stats.TotalLines())
	// Binary files count as touched with zero line churn.
	assert.Equal(t, []string{"pkg/auth/auth.go", "pkg/auth/legacy.go", "assets/logo.png"}, stats.FilesTouched)
	assert.Equal(t, 3, stats.FilesCount())
}

func TestParseNumstatEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DiffStats{}, parseNumstat(""))
	assert.Equal(t, DiffStats{}, parseNumstat("garbage line\n"))
}

func TestCollectDiffStats(t *testing.T) {
	t.Parallel()

	// No branch means no repository to diff.
	stats := collectDiffStats(context.Background(), &fakeGit{out: []byte("1\t1\ta.go\n")}, Workspace{})
	assert.Equal(t, DiffStats{}, stats)

	ws := Workspace{Dir: "/tmp/x", Branch: "workbench/attempt-abc"}
	stats = collectDiffStats(context.Background(), &fakeGit{out: []byte("1\t1\ta.go\n")}, ws)
	assert.Equal(t, 2, stats.TotalLines())

	// Git failure degrades to empty stats, never an error.
	stats = collectDiffStats(context.Background(), &fakeGit{err: assert.AnError}, ws)
	assert.Equal(t, DiffStats{}, stats)
}
