// Package integration_test drives the full attempt lifecycle end to end:
// real store, real dispatcher pool, real log pipeline, scripted agent.
package integration_test

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbench/pkg/clarify"
	"workbench/pkg/dispatcher"
	"workbench/pkg/logstream"
	"workbench/pkg/protocol"
	"workbench/pkg/runner"
	"workbench/pkg/store"
)

type scriptProcess struct {
	reader io.Reader
}

func (p *scriptProcess) Events() io.Reader { return p.reader }
func (p *scriptProcess) Wait() error       { return nil }
func (p *scriptProcess) Kill() error       { return nil }

// scriptSpawner replays scripted agent runs in spawn order.
type scriptSpawner struct {
	mu      sync.Mutex
	scripts []string
	prompts []string
}

func (s *scriptSpawner) Spawn(_ context.Context, req runner.SpawnRequest) (runner.AgentProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req.Prompt)
	if len(s.scripts) == 0 {
		return &scriptProcess{reader: strings.NewReader("")}, nil
	}
	script := s.scripts[0]
	s.scripts = s.scripts[1:]
	return &scriptProcess{reader: strings.NewReader(script)}, nil
}

type harness struct {
	store    *store.Store
	pipeline *logstream.Pipeline
	clarify  *clarify.Manager
}

// startHarness wires the full stack over a temp database and runs the
// dispatcher pool until the test ends.
func startHarness(t *testing.T, spawner runner.AgentSpawner, workers int) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pipeline := logstream.New(st, logstream.WithPollInterval(20*time.Millisecond))
	run := runner.New(pipeline, spawner, runner.NewTempWorkspaceManager(t.TempDir()))
	cm := clarify.NewManager(st)
	d := dispatcher.New(dispatcher.Config{
		Workers:      workers,
		PollInterval: 10 * time.Millisecond,
	}, st, run, cm)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("dispatcher did not stop")
		}
	})

	return &harness{store: st, pipeline: pipeline, clarify: cm}
}

func waitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("waitFor: condition not met within %v", timeout)
}

func (h *harness) attemptStatus(id string) protocol.AttemptStatus {
	att, err := h.store.GetAttempt(context.Background(), id)
	if err != nil {
		return ""
	}
	return att.Status
}

// TestLifecycleWithClarification runs a signal from ingest to completion:
// the first attempt stalls on a question, an operator answers it, the
// follow-up attempt lands a change, and a live log follower observes the
// whole run down to the terminal entry.
func TestLifecycleWithClarification(t *testing.T) {
	t.Parallel()

	firstRun := `{"type":"message","text":"The issue mentions two session stores."}
{"type":"question","questions":[{"question":"migrate redis sessions too?","header":"Scope","default":"no"}]}
`
	secondRun := `{"type":"message","text":"Scoping to the SQL store only, as answered."}
{"type":"tool_call","tool_id":"t1","tool_name":"bash","tool_input":{"command":"go test ./..."}}
{"type":"tool_result","tool_id":"t1","content":"ok"}
{"type":"result","text":"Opened https://github.com/acme/api/pull/19","result":{"session_id":"s2","cost_usd":0.31,"turns":4,"input_tokens":2100,"output_tokens":700}}
`
	spawner := &scriptSpawner{scripts: []string{firstRun, secondRun}}
	h := startHarness(t, spawner, 1)
	ctx := context.Background()

	sigID, err := h.store.UpsertSignal(ctx, protocol.Signal{
		Repo: "acme/api", IssueNumber: 88, Title: "drop legacy session store", Priority: 60,
	})
	require.NoError(t, err)
	first, err := h.store.CreateAttempt(ctx, sigID, protocol.DefaultBudget(), protocol.RunnerMetadata{})
	require.NoError(t, err)

	waitFor(t, func() bool {
		return h.attemptStatus(first.ID) == protocol.AttemptNeedsHuman
	}, 5*time.Second)

	sig, err := h.store.GetSignal(ctx, sigID)
	require.NoError(t, err)
	assert.Equal(t, protocol.SignalBlocked, sig.State)

	clars, err := h.store.ListClarifications(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, clars, 1)
	assert.Equal(t, "migrate redis sessions too?", clars[0].QuestionText)

	// Replaying the stalled attempt's log shows the question, then a
	// terminal entry even though the run raised no result.
	entries, err := h.pipeline.ReadFrom(ctx, first.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.True(t, last.IsFinal)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}

	require.NoError(t, h.clarify.AcceptDefault(ctx, clars[0].ID, "alice"))
	second, err := h.clarify.Retry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)

	// Tail the follow-up live while the worker runs it.
	followCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ch, errs := h.pipeline.Follow(followCtx, second.ID, 0)

	var followed []protocol.LogEntry
	for e := range ch {
		followed = append(followed, e)
	}
	require.NoError(t, <-errs)
	require.NotEmpty(t, followed)
	assert.True(t, followed[len(followed)-1].IsFinal)
	for i, e := range followed {
		assert.Equal(t, int64(i+1), e.Seq)
	}

	waitFor(t, func() bool {
		return h.attemptStatus(second.ID) == protocol.AttemptSuccess
	}, 5*time.Second)

	att, err := h.store.GetAttempt(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/api/pull/19", att.PRURL)

	summary, err := protocol.DecodeSummary(att.Summary)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Metrics.ToolCalls)
	assert.Equal(t, 0.31, summary.Metrics.CostUSD)

	sig, err = h.store.GetSignal(ctx, sigID)
	require.NoError(t, err)
	assert.Equal(t, protocol.SignalCompleted, sig.State)

	// The answered question travels into the follow-up prompt.
	spawner.mu.Lock()
	prompts := append([]string(nil), spawner.prompts...)
	spawner.mu.Unlock()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "migrate redis sessions too?")
	assert.Contains(t, prompts[1], "no")
}

// TestBudgetBreachRequeues verifies that a hard budget kill is classified
// and fed back into the signal queue end to end.
func TestBudgetBreachRequeues(t *testing.T) {
	t.Parallel()

	greedy := `{"type":"tool_call","tool_id":"t1","tool_name":"bash","tool_input":{}}
{"type":"tool_call","tool_id":"t2","tool_name":"bash","tool_input":{}}
{"type":"tool_call","tool_id":"t3","tool_name":"bash","tool_input":{}}
`
	spawner := &scriptSpawner{scripts: []string{greedy}}
	h := startHarness(t, spawner, 1)
	ctx := context.Background()

	budget := protocol.DefaultBudget()
	budget.ToolCalls = 2

	sigID, err := h.store.UpsertSignal(ctx, protocol.Signal{
		Repo: "acme/api", IssueNumber: 5, Title: "refactor billing",
	})
	require.NoError(t, err)
	att, err := h.store.CreateAttempt(ctx, sigID, budget, protocol.RunnerMetadata{})
	require.NoError(t, err)

	waitFor(t, func() bool {
		return h.attemptStatus(att.ID) == protocol.AttemptFailed
	}, 5*time.Second)

	got, err := h.store.GetAttempt(ctx, att.ID)
	require.NoError(t, err)
	summary, err := protocol.DecodeSummary(got.Summary)
	require.NoError(t, err)
	require.NotEmpty(t, summary.RiskFlags)
	assert.Contains(t, summary.RiskFlags[0], "BUDGET_EXCEEDED:tool_calls")

	sig, err := h.store.GetSignal(ctx, sigID)
	require.NoError(t, err)
	assert.Equal(t, protocol.SignalQueued, sig.State)
}

// TestParallelWorkersShareTheQueue floods the queue and checks every
// attempt lands exactly once across a multi-worker pool.
func TestParallelWorkersShareTheQueue(t *testing.T) {
	t.Parallel()

	const n = 8
	noop := `{"type":"result","text":"nothing to do"}` + "\n"
	scripts := make([]string, n)
	for i := range scripts {
		scripts[i] = noop
	}
	spawner := &scriptSpawner{scripts: scripts}
	h := startHarness(t, spawner, 3)
	ctx := context.Background()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sigID, err := h.store.UpsertSignal(ctx, protocol.Signal{
			Repo: "acme/api", IssueNumber: 100 + i, Title: "chore",
		})
		require.NoError(t, err)
		att, err := h.store.CreateAttempt(ctx, sigID, protocol.DefaultBudget(), protocol.RunnerMetadata{})
		require.NoError(t, err)
		ids = append(ids, att.ID)
	}

	waitFor(t, func() bool {
		for _, id := range ids {
			if !h.attemptStatus(id).Terminal() {
				return false
			}
		}
		return true
	}, 10*time.Second)

	workers := map[string]bool{}
	for _, id := range ids {
		att, err := h.store.GetAttempt(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, protocol.AttemptNoop, att.Status)
		workers[att.WorkerID] = true
	}
	assert.NotEmpty(t, workers)
}
