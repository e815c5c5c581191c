package supervisor

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/parser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test helpers
// =============================================================================

// testRunner implements process.Runner for tests.
type testRunner struct {
	name     string
	buildFn  func(ctx context.Context) (*exec.Cmd, error)
	buildErr error
}

func (r *testRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	if r.buildErr != nil {
		return nil, r.buildErr
	}
	return r.buildFn(ctx)
}

func (r *testRunner) Name() string {
	if r.name != "" {
		return r.name
	}
	return "fake-worker"
}

// shRunner runs script under sh -c.
func shRunner(script string) *testRunner {
	return &testRunner{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "sh", "-c", script), nil
		},
	}
}

type recordingParser struct {
	mu    sync.Mutex
	lines []string
}

func (p *recordingParser) ParseLine(line string) {
	p.mu.Lock()
	p.lines = append(p.lines, line)
	p.mu.Unlock()
}

func (p *recordingParser) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

type diag struct {
	kind logging.Kind
	text string
}

// harness wires a Supervisor to channels and a fake sweeper.
type harness struct {
	sup         *Supervisor
	completions chan Completion
	started     chan WorkerInfo

	mu     sync.Mutex
	diags  []diag
	sweeps []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		completions: make(chan Completion, 8),
		started:     make(chan WorkerInfo, 8),
	}
	h.sup = New(Config{
		Logger:     logging.Discard(),
		BufferSize: 4,
		Sweeper: func(_ context.Context, name string) (int, error) {
			h.mu.Lock()
			h.sweeps = append(h.sweeps, name)
			h.mu.Unlock()
			return 0, nil
		},
		Callbacks: Callbacks{
			OnStart: func(info WorkerInfo) { h.started <- info },
			OnDiagnostic: func(kind logging.Kind, text string) {
				h.mu.Lock()
				h.diags = append(h.diags, diag{kind, text})
				h.mu.Unlock()
			},
			OnComplete: func(c Completion) { h.completions <- c },
		},
	})
	t.Cleanup(h.sup.Wait)
	return h
}

func (h *harness) next(t *testing.T) Completion {
	t.Helper()
	select {
	case c := <-h.completions:
		return c
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Completion{}
	}
}

func (h *harness) diagnostics(kind logging.Kind) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, d := range h.diags {
		if d.kind == kind {
			out = append(out, d.text)
		}
	}
	return out
}

func (h *harness) sweepNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sweeps...)
}

// =============================================================================
// State tests
// =============================================================================

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateExited, "exited"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestState_IsActive(t *testing.T) {
	assert.True(t, StateStarting.IsActive())
	assert.True(t, StateRunning.IsActive())
	assert.True(t, StateStopping.IsActive())
	assert.False(t, StateExited.IsActive())
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "exited", ReasonExited.String())
	assert.Equal(t, "stopped", ReasonStopped.String())
}

func TestExtractExitCode(t *testing.T) {
	assert.Equal(t, 0, extractExitCode(nil))
	assert.Equal(t, 1, extractExitCode(errors.New("boom")))

	err := exec.Command("sh", "-c", "exit 7").Run()
	assert.Equal(t, 7, extractExitCode(err))
}

// =============================================================================
// Supervisor tests
// =============================================================================

func TestSupervisor_StreamsLinesInOrder(t *testing.T) {
	h := newHarness(t)
	p := &recordingParser{}

	info, err := h.sup.Start(context.Background(), shRunner(`for i in 1 2 3 4 5 6 7 8 9 10; do echo "line$i"; done`), p)
	require.NoError(t, err)
	assert.NotEmpty(t, info.RunID)
	assert.Positive(t, info.PID)
	assert.Equal(t, StateRunning, info.State)

	c := h.next(t)
	assert.Equal(t, ReasonExited, c.Reason)
	assert.Equal(t, 0, c.ExitCode)
	assert.False(t, c.Worker.Stopped)
	assert.Equal(t, StateExited, c.Worker.State)
	require.NoError(t, c.Err)

	want := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		want = append(want, "line"+strconv.Itoa(i))
	}
	assert.Equal(t, want, p.Lines())
	assert.False(t, h.sup.HasActive())
}

func TestSupervisor_ExitCode(t *testing.T) {
	h := newHarness(t)

	_, err := h.sup.Start(context.Background(), shRunner("exit 3"), nil)
	require.NoError(t, err)

	c := h.next(t)
	assert.Equal(t, ReasonExited, c.Reason)
	assert.Equal(t, 3, c.ExitCode)
}

func TestSupervisor_Diagnostics(t *testing.T) {
	h := newHarness(t)

	_, err := h.sup.Start(context.Background(), shRunner("echo oops 1>&2"), nil)
	require.NoError(t, err)
	h.next(t)

	app := h.diagnostics(logging.KindApp)
	require.Len(t, app, 2)
	assert.True(t, strings.HasPrefix(app[0], "COMMAND: sh -c"), app[0])
	assert.True(t, strings.HasPrefix(app[1], "WORKING DIR: "), app[1])

	assert.Contains(t, h.diagnostics(logging.KindError), "ERROR: oops")
}

func TestSupervisor_OnStart(t *testing.T) {
	h := newHarness(t)

	info, err := h.sup.Start(context.Background(), shRunner("true"), nil)
	require.NoError(t, err)

	select {
	case got := <-h.started:
		assert.Equal(t, info.RunID, got.RunID)
		assert.Equal(t, []string{"sh", "-c", "true"}, got.Args)
	case <-time.After(5 * time.Second):
		t.Fatal("OnStart not called")
	}
	h.next(t)
}

func TestSupervisor_AlreadyRunning(t *testing.T) {
	h := newHarness(t)

	_, err := h.sup.Start(context.Background(), shRunner("sleep 30"), nil)
	require.NoError(t, err)
	assert.True(t, h.sup.HasActive())
	assert.Len(t, h.sup.Active(), 1)

	_, err = h.sup.Start(context.Background(), shRunner("true"), nil)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.True(t, h.sup.StopAll())

	// Expect one ReasonStopped from StopAll and one ReasonExited from the
	// killed worker, in either order.
	got := map[Reason]Completion{}
	for i := 0; i < 2; i++ {
		c := h.next(t)
		got[c.Reason] = c
	}
	require.Contains(t, got, ReasonStopped)
	require.Contains(t, got, ReasonExited)
	assert.True(t, got[ReasonExited].Worker.Stopped)
	assert.False(t, h.sup.HasActive())
}

func TestSupervisor_StopAll_Sweeps(t *testing.T) {
	h := newHarness(t)

	_, err := h.sup.Start(context.Background(), &testRunner{
		name: "seedfinder",
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "sh", "-c", "sleep 30"), nil
		},
	}, nil)
	require.NoError(t, err)

	h.sup.StopAll()
	h.next(t)
	h.next(t)

	assert.Equal(t, []string{"seedfinder"}, h.sweepNames())
}

func TestSupervisor_StopAll_NoWorkers(t *testing.T) {
	h := newHarness(t)

	assert.True(t, h.sup.StopAll())
	c := h.next(t)
	assert.Equal(t, ReasonStopped, c.Reason)
	assert.False(t, h.sup.HasActive())
}

func TestSupervisor_Kill(t *testing.T) {
	h := newHarness(t)

	info, err := h.sup.Start(context.Background(), shRunner("sleep 30"), nil)
	require.NoError(t, err)

	assert.False(t, h.sup.Kill("no-such-run"))
	assert.True(t, h.sup.Kill(info.RunID))
	assert.False(t, h.sup.HasActive())

	c := h.next(t)
	assert.Equal(t, ReasonExited, c.Reason)
	assert.Equal(t, info.RunID, c.Worker.RunID)
	assert.True(t, c.Worker.Stopped)
	assert.Empty(t, h.sweepNames(), "Kill does not sweep")

	select {
	case extra := <-h.completions:
		t.Fatalf("unexpected completion %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSupervisor_BuildError(t *testing.T) {
	h := newHarness(t)

	buildErr := errors.New("no binary configured")
	_, err := h.sup.Start(context.Background(), &testRunner{buildErr: buildErr}, nil)
	require.ErrorIs(t, err, ErrSpawnFailed)
	assert.ErrorIs(t, err, buildErr)
	assert.False(t, h.sup.HasActive())

	// A failed spawn does not block the next one.
	_, err = h.sup.Start(context.Background(), shRunner("true"), nil)
	require.NoError(t, err)
	h.next(t)
}

func TestSupervisor_SpawnError(t *testing.T) {
	h := newHarness(t)

	_, err := h.sup.Start(context.Background(), &testRunner{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "/nonexistent/worker-binary"), nil
		},
	}, nil)
	require.ErrorIs(t, err, ErrSpawnFailed)
	assert.False(t, h.sup.HasActive())
	assert.NotEmpty(t, h.diagnostics(logging.KindError))
}

func TestSupervisor_ParserPanicDoesNotStopStream(t *testing.T) {
	h := newHarness(t)
	p := &recordingParser{}
	lp := parser.LineParserFunc(func(line string) {
		if line == "bad" {
			panic("boom")
		}
		p.ParseLine(line)
	})

	_, err := h.sup.Start(context.Background(), shRunner("printf 'a\\nbad\\nb\\n'"), lp)
	require.NoError(t, err)
	c := h.next(t)
	assert.Equal(t, 0, c.ExitCode)

	assert.Equal(t, []string{"a", "b"}, p.Lines())

	errs := h.diagnostics(logging.KindError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Error processing line")
	assert.Contains(t, errs[0], "Line: bad")
}

func TestSupervisor_OverlongLineKillsWorker(t *testing.T) {
	h := newHarness(t)
	p := &recordingParser{}

	script := "echo first; head -c 2000000 /dev/zero | tr '\\0' a; echo; sleep 30"
	_, err := h.sup.Start(context.Background(), shRunner(script), p)
	require.NoError(t, err)

	c := h.next(t)
	assert.Equal(t, ReasonExited, c.Reason)
	assert.ErrorIs(t, c.Err, bufio.ErrTooLong)
	assert.Equal(t, []string{"first"}, p.Lines())

	var found bool
	for _, d := range h.diagnostics(logging.KindError) {
		if strings.Contains(d, "Error processing output") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSupervisor_ConcurrentStart(t *testing.T) {
	h := newHarness(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		busy    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sup.Start(context.Background(), shRunner("sleep 30"), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, ErrAlreadyRunning):
				busy++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 7, busy)

	h.sup.StopAll()
	h.next(t)
	h.next(t)
}

func TestWorkerInfo_Uptime(t *testing.T) {
	assert.Zero(t, WorkerInfo{}.Uptime())
	w := WorkerInfo{StartTime: time.Now().Add(-time.Second)}
	assert.GreaterOrEqual(t, w.Uptime(), time.Second)
}
