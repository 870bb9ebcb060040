package store //nolint:testpackage // white-box tests exercise SQL guards directly

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"workbench/pkg/protocol"
)

// newTestStore opens a store on a temp-dir database so tests exercise the
// real WAL + busy_timeout configuration, not an in-memory shortcut.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedSignal inserts a signal and returns its ID.
func seedSignal(t *testing.T, st *Store, repo string, issue, priority int) string {
	t.Helper()
	id, err := st.UpsertSignal(context.Background(), protocol.Signal{
		Repo:        repo,
		IssueNumber: issue,
		Title:       "test signal",
		Body:        "do the thing",
		Priority:    priority,
	})
	require.NoError(t, err)
	return id
}

// seedAttempt creates a pending attempt with the default budget.
func seedAttempt(t *testing.T, st *Store, signalID string) *protocol.Attempt {
	t.Helper()
	att, err := st.CreateAttempt(context.Background(), signalID, protocol.DefaultBudget(), protocol.RunnerMetadata{})
	require.NoError(t, err)
	return att
}

// claimOne claims the next pending attempt and fails the test on no work.
func claimOne(t *testing.T, st *Store, workerID string) *ClaimedAttempt {
	t.Helper()
	claim, err := st.ClaimNext(context.Background(), workerID)
	require.NoError(t, err)
	return claim
}
