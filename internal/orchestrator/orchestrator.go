// Package orchestrator owns the search components and drives primary
// searches and fun-seed sequences through the supervisor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-seed-swarm/internal/config"
	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/metrics"
	"github.com/randomizedcoder/go-seed-swarm/internal/notify"
	"github.com/randomizedcoder/go-seed-swarm/internal/preflight"
	"github.com/randomizedcoder/go-seed-swarm/internal/process"
	"github.com/randomizedcoder/go-seed-swarm/internal/sink"
	"github.com/randomizedcoder/go-seed-swarm/internal/stats"
	"github.com/randomizedcoder/go-seed-swarm/internal/supervisor"
	"github.com/randomizedcoder/go-seed-swarm/internal/timeseries"
)

// ErrBusy is returned when a search or sequence is already running.
var ErrBusy = errors.New("a search is already running, stop it first")

// role says what a worker is being started for.
type role int

const (
	roleNone role = iota
	rolePrimary
	roleStep
)

const shutdownTimeout = 10 * time.Second

// Config holds the collaborators of an Orchestrator. Only Settings is
// required.
type Config struct {
	Settings *config.Config
	Logger   *slog.Logger

	// Console receives diagnostics. Defaults to an in-memory console.
	Console *logging.Console

	// Display receives results-changed, status and finish events.
	Display Display

	// Metrics defaults to a collector on a private registry.
	Metrics *metrics.Collector

	// Sweeper overrides the orphan sweep used by Stop.
	Sweeper supervisor.Sweeper
}

// Orchestrator coordinates all components for a search session.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	console *logging.Console
	display Display

	runner     *process.WorkerRunner
	supervisor *supervisor.Supervisor
	sink       *sink.Sink
	throttle   *notify.Throttle
	debouncer  *notify.Debouncer
	metrics    *metrics.Collector
	scores     *stats.ScoreStats
	rows       *timeseries.RateTracker
	sequence   *Sequence

	// startMu serializes starting primary searches and sequence steps.
	startMu sync.Mutex
	seqCtx  context.Context

	runMu     sync.Mutex
	primary   string // run ID of the active primary search
	launching role   // set while startMu is held around supervisor.Start

	rateMu   sync.Mutex
	peakRate float64

	finished  chan Finish
	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.DefaultConfig()
	}
	console := cfg.Console
	if console == nil {
		console = logging.NewConsole(nil, settings.ConsoleLines)
	}
	display := cfg.Display
	if display == nil {
		display = NopDisplay{}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewCollectorWithRegistry(
			metrics.CollectorConfig{ConfigName: settings.ConfigName},
			prometheus.NewRegistry(),
		)
	}

	o := &Orchestrator{
		config:    settings,
		logger:    logger,
		console:   console,
		display:   display,
		runner:    process.NewWorkerRunner(settings.WorkerConfig()),
		sink:      sink.New(settings.DatabaseDir, logger),
		metrics:   collector,
		scores:    stats.NewScoreStats(),
		rows:      timeseries.NewRateTracker(),
		sequence:  NewSequence(),
		finished:  make(chan Finish, 1),
		startTime: time.Now(),
	}

	o.throttle = notify.NewThrottle(settings.RefreshInterval, o.refresh)
	o.debouncer = notify.NewDebouncer(settings.DebounceDelay, o.refresh)

	o.supervisor = supervisor.New(supervisor.Config{
		Logger:         logger,
		BufferSize:     settings.LineBuffer,
		ExecutableName: o.runner.Name(),
		Sweeper:        cfg.Sweeper,
		Callbacks: supervisor.Callbacks{
			OnStart:       o.onStart,
			OnDiagnostic:  o.console.Append,
			OnLineFailure: o.onLineFailure,
			OnComplete:    o.onComplete,
		},
	})

	console.Subscribe(display.Diagnostic)
	return o
}

// =============================================================================
// Operations
// =============================================================================

// StartSearch launches a single primary search with the configured
// settings.
func (o *Orchestrator) StartSearch(ctx context.Context) error {
	if err := o.checkIdentity(); err != nil {
		return err
	}

	o.startMu.Lock()
	defer o.startMu.Unlock()

	if o.Busy() {
		return ErrBusy
	}
	if err := o.connect(); err != nil {
		return err
	}

	o.console.Append(logging.KindApp, "Starting search...")
	if _, err := o.launch(ctx, o.runner, rolePrimary); err != nil {
		o.console.Append(logging.KindError, "Failed to start search: "+err.Error())
		return err
	}
	return nil
}

// StartSequence runs a fun-seed search over a built-in category.
func (o *Orchestrator) StartSequence(ctx context.Context, category string) error {
	words, err := CategoryWords(category)
	if err != nil {
		return err
	}
	return o.StartSequenceWords(ctx, strings.ToUpper(strings.TrimSpace(category)), words)
}

// StartSequenceWords runs a fun-seed search over custom words. label names
// the sequence in messages.
func (o *Orchestrator) StartSequenceWords(ctx context.Context, label string, words []string) error {
	if err := o.checkIdentity(); err != nil {
		return err
	}
	words, skipped, err := NormalizeWords(words)
	for _, w := range skipped {
		o.console.Appendf(logging.KindApp, "Skipping %s: too long to fit a %d-character seed", w, process.MaxSeedLength)
	}
	if err != nil {
		return err
	}
	tasks := GenerateFunSeeds(words)

	o.startMu.Lock()
	defer o.startMu.Unlock()

	if o.supervisor.HasActive() {
		return ErrBusy
	}
	if err := o.connect(); err != nil {
		return err
	}

	first, err := o.sequence.Begin(label, tasks)
	if err != nil {
		return err
	}
	o.seqCtx = ctx

	o.logger.Info("sequence_starting", "label", label, "words", len(words), "steps", len(tasks))
	o.console.Appendf(logging.KindApp, "Starting %s fun seed search! (%d seeds)", label, len(tasks))

	return o.startStepLocked(ctx, 0, len(tasks), first)
}

// Stop kills every worker and abandons any sequence. It is safe to call
// when nothing is running.
func (o *Orchestrator) Stop() {
	st, wasSequence := o.sequence.Stop()

	o.runMu.Lock()
	hadPrimary := o.primary != ""
	o.primary = ""
	o.runMu.Unlock()

	o.supervisor.StopAll()

	if wasSequence {
		o.metrics.SequenceFinished(OutcomeStopped.String())
		o.logger.Info("sequence_stopped", "label", st.Label, "step", st.Index, "total", st.Total)
		o.console.Appendf(logging.KindApp, "%s fun search stopped at step %d of %d", st.Label, st.Index+1, st.Total)
	}
	if wasSequence || hadPrimary {
		o.finish(Finish{
			Outcome:  OutcomeStopped,
			Sequence: wasSequence,
			Label:    st.Label,
			ExitCode: -1,
		})
	}
}

// Busy reports whether a primary search or a sequence is active.
func (o *Orchestrator) Busy() bool {
	return o.sequence.Active() || o.supervisor.HasActive()
}

// SequenceStatus returns a snapshot of the fun-seed sequence.
func (o *Orchestrator) SequenceStatus() SequenceStatus {
	return o.sequence.Status()
}

// Workers returns the active worker processes.
func (o *Orchestrator) Workers() []supervisor.WorkerInfo {
	return o.supervisor.Active()
}

// RequestRefresh asks for a results-changed notification. Bursts of
// requests collapse into one.
func (o *Orchestrator) RequestRefresh() {
	o.debouncer.Trigger()
}

// Results queries the result database of the configured identity.
func (o *Orchestrator) Results(opts sink.QueryOptions) (*sink.ResultSet, error) {
	if err := o.connect(); err != nil {
		return nil, err
	}
	return o.sink.Query(opts)
}

// DatabaseStats describes the result database.
func (o *Orchestrator) DatabaseStats() (sink.Stats, error) {
	if err := o.connect(); err != nil {
		return sink.Stats{}, err
	}
	return o.sink.Stats()
}

// DeleteAll removes every stored result. It is rejected while busy.
func (o *Orchestrator) DeleteAll() error {
	if o.Busy() {
		return ErrBusy
	}
	if err := o.connect(); err != nil {
		return err
	}
	if err := o.sink.DeleteAll(); err != nil {
		return err
	}
	o.scores.Reset()
	o.console.Append(logging.KindApp, "Database cleared")
	o.display.ResultsChanged()
	return nil
}

// Export writes up to limit results to path. It returns the number of rows
// written.
func (o *Orchestrator) Export(format sink.Format, path string, limit int) (int, error) {
	if err := o.connect(); err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = o.config.ExportLimit
	}
	n, err := o.sink.Export(format, path, limit)
	if err != nil {
		return 0, err
	}
	o.console.Appendf(logging.KindApp, "Exported %d results to %s", n, path)
	return n, nil
}

// IngestRate reports how fast rows have been stored this session.
func (o *Orchestrator) IngestRate() timeseries.RateStats {
	return o.rows.Stats()
}

// Done delivers each Finish event.
func (o *Orchestrator) Done() <-chan Finish {
	return o.finished
}

// Close stops any running search, waits for worker goroutines and closes
// the database.
func (o *Orchestrator) Close() error {
	if o.Busy() {
		o.Stop()
	}
	o.debouncer.Stop()
	o.supervisor.Wait()
	return o.sink.Close()
}

// =============================================================================
// Run
// =============================================================================

// Job starts the work of a Run.
type Job func(ctx context.Context, o *Orchestrator) error

// Run performs preflight checks, serves metrics, starts job and blocks
// until the job finishes, a signal arrives or ctx is cancelled. The exit
// summary is written to summary if non-nil.
func (o *Orchestrator) Run(ctx context.Context, job Job, summary io.Writer) error {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		if err := o.Preflight(ctx, os.Stderr); err != nil {
			return err
		}
	}

	var metricsServer *metrics.Server
	if o.config.MetricsAddr != "" {
		metricsServer = metrics.NewServer(o.config.MetricsAddr, o.logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var runErr error
	if err := job(ctx, o); err != nil {
		runErr = err
	} else {
		select {
		case f := <-o.finished:
			o.logger.Info("search_finished", "outcome", f.Outcome.String(), "exit_code", f.ExitCode)
			if f.Outcome == OutcomeFailed {
				runErr = f.Err
			}
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			o.Stop()
		case <-ctx.Done():
			o.logger.Info("context_cancelled")
			o.Stop()
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	waited := make(chan struct{})
	go func() {
		o.supervisor.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		o.logger.Warn("shutdown_incomplete", "error", shutdownCtx.Err())
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	if summary != nil {
		fmt.Fprint(summary, o.ExitSummary())
	}
	return runErr
}

// Preflight runs the environment checks and prints their results to w.
func (o *Orchestrator) Preflight(ctx context.Context, w io.Writer) error {
	result := preflight.RunAll(ctx, o.preflightOptions())
	preflight.PrintResults(w, result)
	if !result.Passed {
		return fmt.Errorf("preflight checks failed (use --skip-preflight to override)")
	}
	return nil
}

// ExitSummary formats the session summary.
func (o *Orchestrator) ExitSummary() string {
	summary := o.metrics.GenerateSummary()

	cfg := stats.SummaryConfig{
		Duration:     time.Since(o.startTime),
		ConfigName:   o.config.ConfigName,
		TotalStarts:  summary.TotalStarts,
		RowsUpserted: summary.RowsUpserted,
		PeakRate:     o.peak(),
		LineCounts:   summary.LineCounts,
		ExitCodes:    summary.ExitCodes,
		UptimeP50:    summary.UptimeP50,
		UptimeP95:    summary.UptimeP95,
		MetricsAddr:  o.config.MetricsAddr,
	}
	if st, err := o.sink.Stats(); err == nil {
		cfg.DatabasePath = st.Path
		cfg.DatabaseRows = int64(st.Rows)
		cfg.DatabaseColumns = len(st.Columns)
		if fi, err := os.Stat(st.Path); err == nil {
			cfg.DatabaseBytes = fi.Size()
		}
	}

	var score *stats.ScoreSnapshot
	if o.scores.Count() > 0 {
		snap := o.scores.Snapshot()
		score = &snap
	}
	return stats.FormatExitSummary(score, cfg)
}

// =============================================================================
// Internals
// =============================================================================

func (o *Orchestrator) peak() float64 {
	o.rateMu.Lock()
	defer o.rateMu.Unlock()
	return o.peakRate
}

func (o *Orchestrator) checkIdentity() error {
	if strings.TrimSpace(o.config.ConfigName) == "" {
		return config.ErrMissingIdentity
	}
	return nil
}

// connect opens the result database for the configured identity and
// reports columns already present.
func (o *Orchestrator) connect() error {
	already := o.sink.Path() == sink.PathFor(o.config.DatabaseDir, o.config.ConfigName)
	if err := o.sink.Connect(o.config.ConfigName); err != nil {
		return fmt.Errorf("connecting to result database: %w", err)
	}
	if already {
		return nil
	}
	cols, err := o.sink.Columns()
	if err != nil {
		o.logger.Warn("sink_columns_failed", "error", err)
		return nil
	}
	if len(cols) > 0 {
		o.console.Append(logging.KindApp, "Existing table columns: "+strings.Join(cols, ", "))
		o.metrics.SetSchemaColumns(len(cols))
	}
	return nil
}

// launch starts a worker for r. Callers hold startMu.
func (o *Orchestrator) launch(ctx context.Context, runner process.Runner, r role) (supervisor.WorkerInfo, error) {
	o.runMu.Lock()
	o.launching = r
	o.runMu.Unlock()
	defer func() {
		o.runMu.Lock()
		o.launching = roleNone
		o.runMu.Unlock()
	}()

	_, session := newIngest(o)
	info, err := o.supervisor.Start(ctx, runner, session)
	if errors.Is(err, supervisor.ErrAlreadyRunning) {
		return info, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return info, err
}

// startStepLocked starts step index of the sequence. Callers hold startMu.
// A step whose sequence was stopped meanwhile is not started.
func (o *Orchestrator) startStepLocked(ctx context.Context, index, total int, task SearchTask) error {
	if !o.sequence.Pending(index) {
		o.logger.Debug("sequence_step_skipped", "seed", task.Seed, "step", index)
		return nil
	}
	o.metrics.SequenceStep(index, total)
	o.console.Appendf(logging.KindApp, "    Searching: %s (n=%d)", task.Seed, task.N)

	if _, err := o.launch(ctx, o.runner.WithSeed(task.Seed, task.N), roleStep); err != nil {
		st, _ := o.sequence.Stop()
		o.metrics.SequenceFinished(OutcomeFailed.String())
		o.logger.Error("sequence_step_failed", "seed", task.Seed, "step", index, "error", err)
		o.console.Append(logging.KindError, "Error in fun search: "+err.Error())
		o.finish(Finish{
			Outcome:  OutcomeFailed,
			Sequence: true,
			Label:    st.Label,
			ExitCode: -1,
			Err:      err,
		})
		return err
	}
	return nil
}

func (o *Orchestrator) finish(f Finish) {
	o.display.Finished(f)
	select {
	case o.finished <- f:
	default:
		// Unread finish events are replaced by the latest.
		select {
		case <-o.finished:
		default:
		}
		select {
		case o.finished <- f:
		default:
		}
	}
}

// refresh is the throttle and debouncer callback.
func (o *Orchestrator) refresh() {
	o.metrics.RefreshFired()

	o.rows.Sample()
	rate := o.rows.Stats().Short
	o.metrics.SetIngestRate(rate)
	o.rateMu.Lock()
	if rate > o.peakRate {
		o.peakRate = rate
	}
	o.rateMu.Unlock()

	if o.scores.Count() > 0 {
		snap := o.scores.Snapshot()
		o.metrics.SetScoreQuantiles(snap.P50, snap.P95, snap.P99)
	}
	o.display.ResultsChanged()
}

func (o *Orchestrator) preflightOptions() preflight.Options {
	threads, _ := strconv.Atoi(process.ThreadGroups(o.config.Threads))
	return preflight.Options{
		WorkerPath:  o.config.WorkerPath,
		WorkDir:     o.config.WorkDir,
		DatabaseDir: o.config.DatabaseDir,
		Threads:     threads,
	}
}

// Callback handlers

func (o *Orchestrator) onStart(info supervisor.WorkerInfo) {
	o.metrics.WorkerStarted()
	o.metrics.SetActiveCount(1)

	// Already killed by a Stop that raced the spawn.
	if info.Stopped {
		return
	}

	o.runMu.Lock()
	r := o.launching
	if r == rolePrimary {
		o.primary = info.RunID
	}
	o.runMu.Unlock()

	if r == rolePrimary || (r == roleStep && o.sequence.Bind(info.RunID)) {
		if o.config.Verbose {
			o.logger.Debug("worker_process_started", "run_id", info.RunID, "pid", info.PID)
		}
		return
	}

	// Neither a primary search nor the waiting step: the sequence was
	// stopped while this worker was spawning.
	o.logger.Warn("worker_unowned", "run_id", info.RunID, "pid", info.PID)
	o.supervisor.Kill(info.RunID)
}

func (o *Orchestrator) onLineFailure(runID string, err error) {
	o.metrics.LineFailed()
}

func (o *Orchestrator) onComplete(c supervisor.Completion) {
	o.throttle.Flush()

	if c.Reason == supervisor.ReasonStopped {
		o.metrics.SetActiveCount(0)
		o.console.Append(logging.KindApp, "Search stopped")
		return
	}

	o.metrics.RecordExit(c.ExitCode, c.Worker.Uptime(), c.Worker.Stopped)
	o.metrics.SetActiveCount(len(o.supervisor.Active()))
	if c.Worker.Stopped {
		o.takePrimary(c.Worker.RunID)
		return
	}

	if o.takePrimary(c.Worker.RunID) {
		o.console.Appendf(logging.KindApp, "Search completed (exit code %d)", c.ExitCode)
		o.finish(Finish{Outcome: OutcomeComplete, ExitCode: c.ExitCode, Err: c.Err})
		return
	}

	o.advance(c)
}

// advance moves the sequence on after its current worker exits.
func (o *Orchestrator) advance(c supervisor.Completion) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	label := o.sequence.Status().Label
	finished, next, done, ok := o.sequence.Advance(c.Worker.RunID)
	if !ok {
		o.logger.Debug("stale_completion", "run_id", c.Worker.RunID)
		return
	}
	o.console.Appendf(logging.KindApp, "Completed: %s", finished.Seed)

	if done {
		o.metrics.SequenceFinished(OutcomeComplete.String())
		o.logger.Info("sequence_complete", "label", label)
		o.console.Append(logging.KindApp, "--- Search Complete ---")
		o.console.Appendf(logging.KindApp, "All %s searches complete! Check your results!", label)
		o.finish(Finish{
			Outcome:  OutcomeComplete,
			Sequence: true,
			Label:    label,
			ExitCode: c.ExitCode,
			Err:      c.Err,
		})
		return
	}

	st := o.sequence.Status()
	ctx := o.seqCtx
	if ctx == nil {
		ctx = context.Background()
	}
	_ = o.startStepLocked(ctx, st.Index, st.Total, next)
}

func (o *Orchestrator) takePrimary(runID string) bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.primary == "" || o.primary != runID {
		return false
	}
	o.primary = ""
	return true
}
