package store //nolint:testpackage // white-box tests exercise SQL guards directly

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbench/pkg/protocol"
)

func TestAppendLogEntryAssignsGaplessSequence(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	sigID := seedSignal(t, st, "acme/api", 1, 10)
	att := seedAttempt(t, st, sigID)

	for i := 1; i <= 5; i++ {
		seq, err := st.AppendLogEntry(ctx, att.ID, protocol.KindEvent,
			fmt.Sprintf(`{"n":%d}`, i), false)
		require.NoError(t, err)
		assert.Equal(t, int64(i), seq)
	}

	entries, err := st.ReadLogEntries(ctx, att.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.False(t, e.IsFinal)
	}
}

func TestAppendLogEntrySequencesPerAttempt(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	a := seedSignal(t, st, "acme/api", 1, 10)
	b := seedSignal(t, st, "acme/web", 2, 10)
	attA := seedAttempt(t, st, a)
	attB := seedAttempt(t, st, b)

	seqA, err := st.AppendLogEntry(ctx, attA.ID, protocol.KindEvent, "{}", false)
	require.NoError(t, err)
	seqB, err := st.AppendLogEntry(ctx, attB.ID, protocol.KindEvent, "{}", false)
	require.NoError(t, err)

	// Each attempt's log starts at 1 regardless of the other.
	assert.Equal(t, int64(1), seqA)
	assert.Equal(t, int64(1), seqB)
}

func TestReadLogEntriesSinceSeq(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	sigID := seedSignal(t, st, "acme/api", 1, 10)
	att := seedAttempt(t, st, sigID)

	for i := 0; i < 4; i++ {
		_, err := st.AppendLogEntry(ctx, att.ID, protocol.KindMessage, "{}", false)
		require.NoError(t, err)
	}
	_, err := st.AppendLogEntry(ctx, att.ID, protocol.KindResult, `{"exit":"completed"}`, true)
	require.NoError(t, err)

	entries, err := st.ReadLogEntries(ctx, att.ID, 3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(4), entries[0].Seq)
	assert.Equal(t, int64(5), entries[1].Seq)
	assert.True(t, entries[1].IsFinal)
	assert.Equal(t, protocol.KindResult, entries[1].Kind)

	// Limit caps the batch.
	entries, err = st.ReadLogEntries(ctx, att.ID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
