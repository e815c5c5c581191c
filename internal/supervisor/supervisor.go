package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/parser"
	"github.com/randomizedcoder/go-seed-swarm/internal/process"
)

var (
	// ErrAlreadyRunning is returned by Start while a worker is active.
	ErrAlreadyRunning = errors.New("a worker is already running")

	// ErrSpawnFailed is returned by Start when the worker could not be
	// launched. It wraps the underlying cause.
	ErrSpawnFailed = errors.New("failed to start worker")
)

const sweepTimeout = 5 * time.Second

// WorkerInfo is a snapshot of a worker process.
type WorkerInfo struct {
	RunID     string
	PID       int
	Args      []string
	Dir       string
	StartTime time.Time
	State     State

	// Stopped is true when the worker was killed by StopAll.
	Stopped bool
}

// Uptime returns how long the worker has been (or was) running.
func (w WorkerInfo) Uptime() time.Duration {
	if w.StartTime.IsZero() {
		return 0
	}
	return time.Since(w.StartTime)
}

// Completion is delivered to Callbacks.OnComplete.
type Completion struct {
	Reason Reason

	// Worker, ExitCode and Err are set for ReasonExited.
	Worker   WorkerInfo
	ExitCode int
	Err      error
}

// Callbacks contains optional callback functions for supervisor events.
// They are invoked without any supervisor lock held, from reader goroutines
// or from the caller of StopAll.
type Callbacks struct {
	// OnStart is called after a worker process has been spawned.
	OnStart func(info WorkerInfo)

	// OnDiagnostic receives operator-facing lines: the command line, the
	// working directory, worker stderr and stream failures.
	OnDiagnostic func(kind logging.Kind, text string)

	// OnLineFailure is called when handling a stdout line panicked.
	OnLineFailure func(runID string, err error)

	// OnComplete is called once per worker after it has exited and its
	// output has been fully consumed, and once per StopAll.
	OnComplete func(c Completion)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Logger    *slog.Logger
	Callbacks Callbacks

	// BufferSize is the line channel capacity per stream.
	BufferSize int

	// ExecutableName is swept by StopAll. Defaults to the name of the last
	// started runner.
	ExecutableName string

	// Sweeper kills stray processes by name. Defaults to SweepByName.
	Sweeper Sweeper
}

type worker struct {
	info    WorkerInfo
	stopped atomic.Bool
	exited  atomic.Bool

	cmdMu sync.Mutex
	cmd   *exec.Cmd
}

// Supervisor owns the set of active worker processes. At most one worker
// runs at a time.
type Supervisor struct {
	logger     *slog.Logger
	callbacks  Callbacks
	bufferSize int
	sweeper    Sweeper

	mu       sync.Mutex
	workers  map[string]*worker
	execName string

	wg sync.WaitGroup
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sweeper := cfg.Sweeper
	if sweeper == nil {
		sweeper = SweepByName
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Supervisor{
		logger:     logger,
		callbacks:  cfg.Callbacks,
		bufferSize: bufferSize,
		sweeper:    sweeper,
		workers:    make(map[string]*worker),
		execName:   cfg.ExecutableName,
	}
}

// Start spawns a worker built by runner and feeds its stdout, line by line
// and in order, to lp. It returns ErrAlreadyRunning if a worker is active
// and an error wrapping ErrSpawnFailed if the process could not be started.
func (s *Supervisor) Start(ctx context.Context, runner process.Runner, lp parser.LineParser) (WorkerInfo, error) {
	if lp == nil {
		lp = parser.NoopParser{}
	}

	w := &worker{info: WorkerInfo{
		RunID: uuid.NewString(),
		State: StateStarting,
	}}

	// Reserve the slot first so two concurrent Starts cannot both spawn.
	s.mu.Lock()
	s.pruneLocked()
	if len(s.workers) > 0 {
		s.mu.Unlock()
		return WorkerInfo{}, ErrAlreadyRunning
	}
	s.workers[w.info.RunID] = w
	if name := runner.Name(); name != "" {
		s.execName = name
	}
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.workers, w.info.RunID)
		s.mu.Unlock()
	}

	cmd, err := runner.BuildCommand(ctx)
	if err != nil {
		release()
		s.logger.Error("failed_to_build_command", "run_id", w.info.RunID, "error", err)
		return WorkerInfo{}, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	dir := cmd.Dir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	s.diagnostic(logging.KindApp, "COMMAND: "+strings.Join(cmd.Args, " "))
	s.diagnostic(logging.KindApp, "WORKING DIR: "+dir)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		release()
		return WorkerInfo{}, fmt.Errorf("%w: stdout pipe: %w", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		release()
		return WorkerInfo{}, fmt.Errorf("%w: stderr pipe: %w", ErrSpawnFailed, err)
	}

	// Own process group so the whole tree can be killed.
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		release()
		s.logger.Error("failed_to_start_process", "run_id", w.info.RunID, "error", err)
		s.diagnostic(logging.KindError, "Error starting search: "+err.Error())
		return WorkerInfo{}, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	s.mu.Lock()
	w.info.PID = cmd.Process.Pid
	w.info.Args = append([]string(nil), cmd.Args...)
	w.info.Dir = dir
	w.info.StartTime = time.Now()
	w.info.State = StateRunning
	// StopAll may have cleared the set between reservation and spawn.
	_, tracked := s.workers[w.info.RunID]
	if !tracked {
		w.info.Stopped = true
	}
	info := w.info
	s.mu.Unlock()

	w.cmdMu.Lock()
	w.cmd = cmd
	w.cmdMu.Unlock()

	if !tracked {
		w.stopped.Store(true)
		if err := killProcessTree(cmd); err != nil {
			s.logger.Warn("worker_kill_failed", "run_id", info.RunID, "pid", info.PID, "error", err)
		}
	}

	s.logger.Info("worker_started",
		"run_id", info.RunID,
		"pid", info.PID,
		"args", strings.Join(info.Args, " "),
	)

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(info)
	}

	stdoutPipeline := parser.NewPipeline(info.RunID, "stdout", s.bufferSize)
	stdoutPipeline.OnFailure(func(line string, err error) {
		s.logger.Warn("line_parse_failed", "run_id", info.RunID, "error", err)
		s.diagnostic(logging.KindError, fmt.Sprintf("Error processing line: %v\nLine: %s", err, line))
		if s.callbacks.OnLineFailure != nil {
			s.callbacks.OnLineFailure(info.RunID, err)
		}
	})
	stderrPipeline := parser.NewPipeline(info.RunID, "stderr", s.bufferSize)
	stderrParser := parser.LineParserFunc(func(line string) {
		s.diagnostic(logging.KindError, "ERROR: "+line)
	})

	stdoutReader := parser.NewPipeReader(stdout, stdoutPipeline)
	stderrReader := parser.NewPipeReader(stderr, stderrPipeline)

	s.wg.Add(1)
	go s.monitor(w, cmd, stdoutReader, stderrReader, stdoutPipeline, stderrPipeline, lp, stderrParser)

	return info, nil
}

// monitor runs the readers and parsers for one worker, reaps it, and fires
// the completion callback.
func (s *Supervisor) monitor(
	w *worker,
	cmd *exec.Cmd,
	stdoutReader, stderrReader *parser.PipeReader,
	stdoutPipeline, stderrPipeline *parser.Pipeline,
	lp, stderrParser parser.LineParser,
) {
	defer s.wg.Done()

	go stdoutReader.Run()
	go stderrReader.Run()

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		stderrPipeline.RunParser(stderrParser)
	}()

	// Blocks until stdout reaches EOF or fails.
	stdoutPipeline.RunParser(lp)

	streamErr := stdoutReader.Err()
	if streamErr != nil {
		s.logger.Error("worker_stream_error", "run_id", w.info.RunID, "error", streamErr)
		s.diagnostic(logging.KindError, "ERROR_MODEL: Error processing output: "+streamErr.Error())
		if err := w.kill(); err != nil {
			s.logger.Warn("worker_kill_failed", "run_id", w.info.RunID, "error", err)
		}
	}

	<-stderrDone
	waitErr := cmd.Wait()
	exitCode := extractExitCode(waitErr)
	w.exited.Store(true)

	s.mu.Lock()
	delete(s.workers, w.info.RunID)
	w.info.State = StateExited
	w.info.Stopped = w.stopped.Load()
	info := w.info
	s.mu.Unlock()

	read, parsed, failed := stdoutPipeline.Stats()
	s.logger.Info("worker_exited",
		"run_id", info.RunID,
		"pid", info.PID,
		"exit_code", exitCode,
		"stopped", info.Stopped,
		"uptime", info.Uptime().String(),
		"lines_read", read,
		"lines_parsed", parsed,
		"lines_failed", failed,
	)

	if s.callbacks.OnComplete != nil {
		s.callbacks.OnComplete(Completion{
			Reason:   ReasonExited,
			Worker:   info,
			ExitCode: exitCode,
			Err:      streamErr,
		})
	}
}

func (w *worker) kill() error {
	w.cmdMu.Lock()
	cmd := w.cmd
	w.cmdMu.Unlock()
	return killProcessTree(cmd)
}

// StopAll kills every tracked worker's process tree, sweeps the host for
// stray workers by executable name, clears the active set and fires
// OnComplete once with ReasonStopped. It never fails; kill errors are
// logged. Always returns true.
func (s *Supervisor) StopAll() bool {
	s.mu.Lock()
	victims := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		w.stopped.Store(true)
		if w.info.State != StateExited {
			w.info.State = StateStopping
		}
		victims = append(victims, w)
	}
	s.workers = make(map[string]*worker)
	name := s.execName
	s.mu.Unlock()

	for _, w := range victims {
		if w.exited.Load() {
			continue
		}
		if err := w.kill(); err != nil {
			s.logger.Warn("worker_kill_failed", "run_id", w.info.RunID, "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	swept, err := s.sweeper(ctx, name)
	cancel()
	if err != nil {
		s.logger.Warn("orphan_sweep_failed", "name", name, "error", err)
	}

	s.logger.Info("stop_all", "killed", len(victims), "swept", swept)

	if s.callbacks.OnComplete != nil {
		s.callbacks.OnComplete(Completion{Reason: ReasonStopped})
	}
	return true
}

// Kill kills the process tree of one tracked worker and forgets it. Its
// completion still fires, as Exited with Stopped set. Kill reports whether
// runID was tracked.
func (s *Supervisor) Kill(runID string) bool {
	s.mu.Lock()
	w, ok := s.workers[runID]
	if ok {
		w.stopped.Store(true)
		if w.info.State != StateExited {
			w.info.State = StateStopping
		}
		delete(s.workers, runID)
	}
	s.mu.Unlock()

	if !ok || w.exited.Load() {
		return ok
	}
	if err := w.kill(); err != nil {
		s.logger.Warn("worker_kill_failed", "run_id", runID, "error", err)
	}
	s.logger.Info("worker_killed", "run_id", runID)
	return true
}

// HasActive prunes exited workers and reports whether any remain.
func (s *Supervisor) HasActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.workers) > 0
}

// Active returns snapshots of the tracked workers.
func (s *Supervisor) Active() []WorkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	out := make([]WorkerInfo, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.info)
	}
	return out
}

// Wait blocks until every worker's reader goroutines have finished and all
// completion callbacks have returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) pruneLocked() {
	for id, w := range s.workers {
		if w.exited.Load() {
			delete(s.workers, id)
		}
	}
}

func (s *Supervisor) diagnostic(kind logging.Kind, text string) {
	if s.callbacks.OnDiagnostic != nil {
		s.callbacks.OnDiagnostic(kind, text)
	}
}
