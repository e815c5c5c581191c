// Package metrics provides Prometheus metrics for go-seed-swarm.
//
// Metrics are grouped the way the dashboard reads them:
//   - Workers: starts, exits by category, uptime, active count
//   - Ingest: lines by protocol kind, rows upserted or dropped, sink errors
//   - Sequences: steps run, finished sequences by outcome, progress
//   - Results: refresh signals and Score quantiles
package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seed_swarm"

// Exit categories used as the "category" label of worker exits.
const (
	ExitSuccess = "success"
	ExitError   = "error"
	ExitSignal  = "signal"
	ExitStopped = "stopped"
)

// Collector owns the Prometheus metrics of one orchestrator.
type Collector struct {
	info *prometheus.GaugeVec

	// Workers
	workerStarts  prometheus.Counter
	workerExits   *prometheus.CounterVec
	workerUptime  prometheus.Histogram
	activeWorkers prometheus.Gauge

	// Ingest
	linesTotal     *prometheus.CounterVec
	rowsUpserted   prometheus.Counter
	rowsDropped    prometheus.Counter
	sinkErrors     *prometheus.CounterVec
	parseFailures  prometheus.Counter
	schemaColumns  prometheus.Gauge
	duplicateHdrs  prometheus.Counter
	refreshSignals prometheus.Counter
	ingestRate     prometheus.Gauge

	// Sequences
	sequenceSteps    prometheus.Counter
	sequencesTotal   *prometheus.CounterVec
	sequenceProgress prometheus.Gauge

	// Results
	scoreQuantile *prometheus.GaugeVec

	startTime time.Time

	mu           sync.Mutex
	totalStarts  int64
	totalRows    int64
	lineCounts   map[string]int64
	exitCodes    map[int]int64
	uptimes      []time.Duration
	peakProgress float64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version    string
	ConfigName string
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the running instance (value always 1)",
		}, []string{"version", "config"}),

		workerStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_starts_total",
			Help:      "Total worker processes spawned",
		}),
		workerExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_exits_total",
			Help:      "Worker exits by category (success, error, signal, stopped)",
		}, []string{"category"}),
		workerUptime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_uptime_seconds",
			Help:      "Worker process lifetime",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Currently running worker processes",
		}),

		linesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Worker stdout lines by protocol kind",
		}, []string{"kind"}),
		rowsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_upserted_total",
			Help:      "Result rows written to the sink",
		}),
		rowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Result rows dropped because no header had been seen",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Sink failures by operation",
		}, []string{"op"}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_failures_total",
			Help:      "Lines whose handling panicked and were skipped",
		}),
		schemaColumns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schema_columns",
			Help:      "Columns in the active result schema",
		}),
		duplicateHdrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_headers_total",
			Help:      "Header lines declaring a column name more than once",
		}),
		refreshSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_signals_total",
			Help:      "Results-changed notifications delivered to the display",
		}),
		ingestRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_rows_per_second",
			Help:      "Rows stored per second over the last 10 seconds",
		}),

		sequenceSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_steps_total",
			Help:      "Fun-search steps started",
		}),
		sequencesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequences_total",
			Help:      "Finished fun-search sequences by outcome",
		}, []string{"outcome"}),
		sequenceProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sequence_progress",
			Help:      "Progress of the active sequence (0.0 to 1.0)",
		}),

		scoreQuantile: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Score distribution of ingested rows",
		}, []string{"quantile"}),

		startTime:  time.Now(),
		lineCounts: make(map[string]int64),
		exitCodes:  make(map[int]int64),
	}

	registry.MustRegister(
		c.info,
		c.workerStarts,
		c.workerExits,
		c.workerUptime,
		c.activeWorkers,
		c.linesTotal,
		c.rowsUpserted,
		c.rowsDropped,
		c.sinkErrors,
		c.parseFailures,
		c.schemaColumns,
		c.duplicateHdrs,
		c.refreshSignals,
		c.ingestRate,
		c.sequenceSteps,
		c.sequencesTotal,
		c.sequenceProgress,
		c.scoreQuantile,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.ConfigName).Set(1)

	return c
}

// =============================================================================
// Workers
// =============================================================================

// WorkerStarted records a worker spawn.
func (c *Collector) WorkerStarted() {
	c.workerStarts.Inc()
	c.activeWorkers.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// RecordExit records a worker exit. Workers killed by a stop are counted
// under "stopped" whatever their exit code.
func (c *Collector) RecordExit(exitCode int, uptime time.Duration, stopped bool) {
	c.workerExits.WithLabelValues(exitCategory(exitCode, stopped)).Inc()
	c.workerUptime.Observe(uptime.Seconds())
	c.activeWorkers.Dec()

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimes = append(c.uptimes, uptime)
	c.mu.Unlock()
}

// SetActiveCount overrides the active worker gauge.
func (c *Collector) SetActiveCount(count int) {
	c.activeWorkers.Set(float64(count))
}

func exitCategory(exitCode int, stopped bool) string {
	switch {
	case stopped:
		return ExitStopped
	case exitCode == 0:
		return ExitSuccess
	case exitCode > 128:
		return ExitSignal
	default:
		return ExitError
	}
}

// =============================================================================
// Ingest
// =============================================================================

// RecordLine counts one stdout line of the given protocol kind.
func (c *Collector) RecordLine(kind string) {
	c.linesTotal.WithLabelValues(kind).Inc()

	c.mu.Lock()
	c.lineCounts[kind]++
	c.mu.Unlock()
}

// RowUpserted counts one row written to the sink.
func (c *Collector) RowUpserted() {
	c.rowsUpserted.Inc()

	c.mu.Lock()
	c.totalRows++
	c.mu.Unlock()
}

// RowDropped counts a result row that arrived before any header.
func (c *Collector) RowDropped() {
	c.rowsDropped.Inc()
}

// SinkError counts a failed sink operation ("schema", "upsert", ...).
func (c *Collector) SinkError(op string) {
	c.sinkErrors.WithLabelValues(op).Inc()
}

// LineFailed counts a line whose handling panicked.
func (c *Collector) LineFailed() {
	c.parseFailures.Inc()
}

// SetSchemaColumns records the width of the active schema.
func (c *Collector) SetSchemaColumns(n int) {
	c.schemaColumns.Set(float64(n))
}

// DuplicateHeader counts a header with repeated column names.
func (c *Collector) DuplicateHeader() {
	c.duplicateHdrs.Inc()
}

// RefreshFired counts a results-changed notification.
func (c *Collector) RefreshFired() {
	c.refreshSignals.Inc()
}

// SetIngestRate publishes the recent row ingest rate.
func (c *Collector) SetIngestRate(rowsPerSecond float64) {
	c.ingestRate.Set(rowsPerSecond)
}

// =============================================================================
// Sequences
// =============================================================================

// SequenceStep records the start of step index (0-based) out of total.
func (c *Collector) SequenceStep(index, total int) {
	c.sequenceSteps.Inc()
	c.SetSequenceProgress(index, total)
}

// SetSequenceProgress sets progress to done/total.
func (c *Collector) SetSequenceProgress(done, total int) {
	progress := 0.0
	if total > 0 {
		progress = float64(done) / float64(total)
	}
	c.sequenceProgress.Set(progress)

	c.mu.Lock()
	if progress > c.peakProgress {
		c.peakProgress = progress
	}
	c.mu.Unlock()
}

// SequenceFinished records a finished sequence ("complete", "stopped",
// "failed") and resets progress.
func (c *Collector) SequenceFinished(outcome string) {
	c.sequencesTotal.WithLabelValues(outcome).Inc()
	c.sequenceProgress.Set(0)
}

// =============================================================================
// Results
// =============================================================================

// SetScoreQuantiles publishes Score quantiles.
func (c *Collector) SetScoreQuantiles(p50, p95, p99 float64) {
	c.scoreQuantile.WithLabelValues("0.5").Set(p50)
	c.scoreQuantile.WithLabelValues("0.95").Set(p95)
	c.scoreQuantile.WithLabelValues("0.99").Set(p99)
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration     time.Duration
	TotalStarts  int64
	RowsUpserted int64
	LineCounts   map[string]int64
	ExitCodes    map[int]int64
	UptimeP50    time.Duration
	UptimeP95    time.Duration
	UptimeMax    time.Duration
}

// GenerateSummary creates a summary of the session.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:     time.Since(c.startTime),
		TotalStarts:  c.totalStarts,
		RowsUpserted: c.totalRows,
		LineCounts:   make(map[string]int64, len(c.lineCounts)),
		ExitCodes:    make(map[int]int64, len(c.exitCodes)),
	}
	for k, v := range c.lineCounts {
		s.LineCounts[k] = v
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	if len(c.uptimes) > 0 {
		sorted := slices.Clone(c.uptimes)
		slices.Sort(sorted)
		s.UptimeP50 = percentile(sorted, 0.50)
		s.UptimeP95 = percentile(sorted, 0.95)
		s.UptimeMax = sorted[len(sorted)-1]
	}

	return s
}

// TotalStarts returns the total number of worker starts.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

// RowsUpserted returns the number of rows written this session.
func (c *Collector) RowsUpserted() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalRows
}

// percentile returns the value at the given percentile (0.0-1.0).
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
