package runner

import (
	"context"
	"strconv"
	"strings"
)

// DiffStats summarizes workspace changes, used for the soft gates.
type DiffStats struct {
	LinesAdded   int      `json:"lines_added"`
	LinesDeleted int      `json:"lines_deleted"`
	FilesTouched []string `json:"files_touched,omitempty"`
}

// TotalLines is the soft-gate diff size: additions plus deletions.
func (d DiffStats) TotalLines() int { return d.LinesAdded + d.LinesDeleted }

// FilesCount is the number of files touched.
func (d DiffStats) FilesCount() int { return len(d.FilesTouched) }

// collectDiffStats runs git diff --numstat in the workspace and parses the
// result. A workspace without a repository yields empty stats, not an
// error: soft gates simply have nothing to measure.
func collectDiffStats(ctx context.Context, git CommandRunner, ws Workspace) DiffStats {
	if ws.Branch == "" {
		return DiffStats{}
	}
	out, err := git.Run(ctx, ws.Dir, "git", "diff", "--numstat", "HEAD")
	if err != nil {
		return DiffStats{}
	}
	return parseNumstat(string(out))
}

// parseNumstat parses `git diff --numstat` output: one
// "added<TAB>deleted<TAB>path" line per file, "-" for binary counts.
func parseNumstat(out string) DiffStats {
	var stats DiffStats
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		added, err1 := numstatCount(parts[0])
		deleted, err2 := numstatCount(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		stats.LinesAdded += added
		stats.LinesDeleted += deleted
		stats.FilesTouched = append(stats.FilesTouched, parts[2])
	}
	return stats
}

func numstatCount(s string) (int, error) {
	if s == "-" { // binary file
		return 0, nil
	}
	return strconv.Atoi(s)
}
