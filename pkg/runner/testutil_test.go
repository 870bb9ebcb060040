package runner //nolint:testpackage // white-box access to drain and gates

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"workbench/pkg/logstream"
	"workbench/pkg/protocol"
	"workbench/pkg/store"
)

// fakeProcess replays a scripted event stream. With blockAfter set, the
// stream stays open after the scripted lines until Kill closes it, which
// lets tests hold the agent "running" across a budget expiry.
type fakeProcess struct {
	reader  io.Reader
	writer  *io.PipeWriter // non-nil when the stream blocks after the script
	waitErr error
	killed  atomic.Bool
	waitMu  sync.Mutex
}

func newFakeProcess(script string, blockAfter bool, waitErr error) *fakeProcess {
	p := &fakeProcess{waitErr: waitErr}
	if !blockAfter {
		p.reader = strings.NewReader(script)
		return p
	}
	pr, pw := io.Pipe()
	p.reader = pr
	p.writer = pw
	go func() {
		_, _ = pw.Write([]byte(script))
		// Leave the pipe open; Kill closes it.
	}()
	return p
}

func (p *fakeProcess) Events() io.Reader { return p.reader }

func (p *fakeProcess) Wait() error {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()
	return p.waitErr
}

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	if p.writer != nil {
		_ = p.writer.Close()
	}
	return nil
}

// fakeSpawner hands out a scripted process, or fails to launch.
type fakeSpawner struct {
	proc     *fakeProcess
	spawnErr error
	lastReq  SpawnRequest
}

func (s *fakeSpawner) Spawn(_ context.Context, req SpawnRequest) (AgentProcess, error) {
	s.lastReq = req
	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	return s.proc, nil
}

// fakeWorkspaces tracks create/remove pairing.
type fakeWorkspaces struct {
	createErr error
	created   atomic.Int32
	removed   atomic.Int32
}

func (f *fakeWorkspaces) Create(_ context.Context, attemptID, _ string) (Workspace, error) {
	if f.createErr != nil {
		return Workspace{}, f.createErr
	}
	f.created.Add(1)
	return Workspace{Root: "/tmp/fake", Dir: "/tmp/fake/" + attemptID, Branch: "workbench/" + attemptID}, nil
}

func (f *fakeWorkspaces) Remove(_ context.Context, _ Workspace) error {
	f.removed.Add(1)
	return nil
}

// fakeGit returns canned diff output.
type fakeGit struct {
	out []byte
	err error
}

func (g *fakeGit) Run(_ context.Context, _, _ string, _ ...string) ([]byte, error) {
	return g.out, g.err
}

// newTestJob provisions a store-backed pipeline and a claimed attempt so
// log appends satisfy the attempt foreign key.
func newTestJob(t *testing.T) (*logstream.Pipeline, *store.Store, Job) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	sigID, err := st.UpsertSignal(ctx, protocol.Signal{
		Repo: "acme/api", IssueNumber: 1, Title: "fix the flaky auth test", Priority: 50,
	})
	require.NoError(t, err)
	_, err = st.CreateAttempt(ctx, sigID, protocol.DefaultBudget(), protocol.RunnerMetadata{})
	require.NoError(t, err)
	claim, err := st.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	return logstream.New(st), st, Job{
		Attempt: claim.Attempt,
		Signal:  claim.Signal,
		Budget:  claim.Budget,
	}
}
