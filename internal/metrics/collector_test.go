package metrics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestCollector creates a collector with a test registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{Version: "test", ConfigName: "cfg"}, registry)
	return c, registry
}

func snapshot(t *testing.T, g prometheus.Gatherer) map[string]float64 {
	t.Helper()
	snap, err := Snapshot(g)
	require.NoError(t, err)
	return snap
}

// =============================================================================
// Tests: Collector
// =============================================================================

func TestNewCollector_Info(t *testing.T) {
	_, reg := newTestCollector(t)

	snap := snapshot(t, reg)
	assert.Equal(t, 1.0, snap["seed_swarm_info{config=cfg,version=test}"])
}

func TestNewCollector_DefaultVersion(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWithRegistry(CollectorConfig{}, reg)

	snap := snapshot(t, reg)
	assert.Equal(t, 1.0, snap["seed_swarm_info{config=,version=dev}"])
}

func TestCollector_Workers(t *testing.T) {
	c, reg := newTestCollector(t)

	c.WorkerStarted()
	c.WorkerStarted()
	c.RecordExit(0, 2*time.Second, false)
	c.RecordExit(137, time.Second, true)

	snap := snapshot(t, reg)
	assert.Equal(t, 2.0, snap["seed_swarm_worker_starts_total"])
	assert.Equal(t, 1.0, snap["seed_swarm_worker_exits_total{category=success}"])
	assert.Equal(t, 1.0, snap["seed_swarm_worker_exits_total{category=stopped}"])
	assert.Equal(t, 2.0, snap["seed_swarm_worker_uptime_seconds"])
	assert.Equal(t, 0.0, snap["seed_swarm_active_workers"])
	assert.Equal(t, int64(2), c.TotalStarts())
}

func TestExitCategory(t *testing.T) {
	tests := []struct {
		code    int
		stopped bool
		want    string
	}{
		{0, false, ExitSuccess},
		{1, false, ExitError},
		{128, false, ExitError},
		{137, false, ExitSignal},
		{0, true, ExitStopped},
		{137, true, ExitStopped},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCategory(tt.code, tt.stopped), "code=%d stopped=%v", tt.code, tt.stopped)
	}
}

func TestCollector_Ingest(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordLine("result")
	c.RecordLine("result")
	c.RecordLine("status")
	c.RowUpserted()
	c.RowUpserted()
	c.RowDropped()
	c.SinkError("upsert")
	c.LineFailed()
	c.SetSchemaColumns(4)
	c.DuplicateHeader()
	c.RefreshFired()
	c.SetIngestRate(12.5)

	snap := snapshot(t, reg)
	assert.Equal(t, 2.0, snap["seed_swarm_lines_total{kind=result}"])
	assert.Equal(t, 1.0, snap["seed_swarm_lines_total{kind=status}"])
	assert.Equal(t, 2.0, snap["seed_swarm_rows_upserted_total"])
	assert.Equal(t, 1.0, snap["seed_swarm_rows_dropped_total"])
	assert.Equal(t, 1.0, snap["seed_swarm_sink_errors_total{op=upsert}"])
	assert.Equal(t, 1.0, snap["seed_swarm_line_failures_total"])
	assert.Equal(t, 4.0, snap["seed_swarm_schema_columns"])
	assert.Equal(t, 1.0, snap["seed_swarm_duplicate_headers_total"])
	assert.Equal(t, 1.0, snap["seed_swarm_refresh_signals_total"])
	assert.Equal(t, 12.5, snap["seed_swarm_ingest_rows_per_second"])
	assert.Equal(t, int64(2), c.RowsUpserted())
}

func TestCollector_Sequences(t *testing.T) {
	c, reg := newTestCollector(t)

	c.SequenceStep(0, 4)
	c.SequenceStep(1, 4)
	assert.Equal(t, 0.25, snapshot(t, reg)["seed_swarm_sequence_progress"])

	c.SequenceFinished("complete")
	snap := snapshot(t, reg)
	assert.Equal(t, 2.0, snap["seed_swarm_sequence_steps_total"])
	assert.Equal(t, 1.0, snap["seed_swarm_sequences_total{outcome=complete}"])
	assert.Equal(t, 0.0, snap["seed_swarm_sequence_progress"])

	c.SetSequenceProgress(1, 0)
	assert.Equal(t, 0.0, snapshot(t, reg)["seed_swarm_sequence_progress"])
}

func TestCollector_ScoreQuantiles(t *testing.T) {
	c, reg := newTestCollector(t)
	c.SetScoreQuantiles(5, 9, 10)

	snap := snapshot(t, reg)
	assert.Equal(t, 5.0, snap["seed_swarm_score{quantile=0.5}"])
	assert.Equal(t, 9.0, snap["seed_swarm_score{quantile=0.95}"])
	assert.Equal(t, 10.0, snap["seed_swarm_score{quantile=0.99}"])
}

func TestCollector_GenerateSummary(t *testing.T) {
	c, _ := newTestCollector(t)

	c.WorkerStarted()
	c.RecordLine("result")
	c.RowUpserted()
	for _, d := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		c.RecordExit(0, d, false)
	}
	c.RecordExit(1, 4*time.Second, false)

	s := c.GenerateSummary()
	assert.Equal(t, int64(1), s.TotalStarts)
	assert.Equal(t, int64(1), s.RowsUpserted)
	assert.Equal(t, int64(1), s.LineCounts["result"])
	assert.Equal(t, int64(3), s.ExitCodes[0])
	assert.Equal(t, int64(1), s.ExitCodes[1])
	assert.Equal(t, 2*time.Second, s.UptimeP50)
	assert.Equal(t, 4*time.Second, s.UptimeMax)
	assert.Positive(t, s.Duration)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.5))
	sorted := []time.Duration{1, 2, 3, 4, 5}
	assert.Equal(t, time.Duration(3), percentile(sorted, 0.5))
	assert.Equal(t, time.Duration(5), percentile(sorted, 1.0))
}

// =============================================================================
// Tests: Text exposition
// =============================================================================

func TestWriteText_DecodeText(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RowUpserted()
	c.RowUpserted()
	c.RowUpserted()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), "seed_swarm_rows_upserted_total 3")

	families, err := DecodeText(&buf)
	require.NoError(t, err)
	require.Contains(t, families, "seed_swarm_rows_upserted_total")
	assert.Equal(t, 3.0, Flatten(families)["seed_swarm_rows_upserted_total"])
}

func TestDecodeText_Invalid(t *testing.T) {
	_, err := DecodeText(strings.NewReader("not a metric line {{{\n"))
	assert.Error(t, err)
}

// =============================================================================
// Tests: Server
// =============================================================================

func TestServer_Endpoints(t *testing.T) {
	c, reg := newTestCollector(t)
	c.WorkerStarted()

	srv := NewServerWithGatherer("127.0.0.1:0", reg, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	families, err := Scrape(context.Background(), ts.URL+"/metrics")
	require.NoError(t, err)
	assert.Equal(t, 1.0, Flatten(families)["seed_swarm_worker_starts_total"])
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}

func TestScrape_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := Scrape(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
