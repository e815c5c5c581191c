// Package stats tracks the distribution of ingested results and formats the
// exit summary.
package stats

import (
	"math"
	"sync"

	"github.com/influxdata/tdigest"
)

// digestCompression keeps ~100 centroids regardless of row count.
const digestCompression = 100

// ScoreSnapshot is a point-in-time view of a ScoreStats.
type ScoreSnapshot struct {
	Count int64
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
}

// ScoreStats tracks the Score column of ingested rows with a t-digest, so
// quantiles stay cheap however many seeds a worker reports.
//
// Thread-safe: the ingest goroutine adds while the dashboard snapshots.
type ScoreStats struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int64
	sum    float64
	min    float64
	max    float64
}

// NewScoreStats creates an empty ScoreStats.
func NewScoreStats() *ScoreStats {
	return &ScoreStats{
		digest: tdigest.NewWithCompression(digestCompression),
		min:    math.Inf(1),
		max:    math.Inf(-1),
	}
}

// Add records one Score value.
func (s *ScoreStats) Add(v int64) {
	f := float64(v)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest.Add(f, 1)
	s.count++
	s.sum += f
	if f < s.min {
		s.min = f
	}
	if f > s.max {
		s.max = f
	}
}

// Count returns how many values have been added.
func (s *ScoreStats) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Snapshot returns the current distribution. All fields are zero when no
// value has been added.
func (s *ScoreStats) Snapshot() ScoreSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return ScoreSnapshot{}
	}
	return ScoreSnapshot{
		Count: s.count,
		Min:   s.min,
		Max:   s.max,
		Mean:  s.sum / float64(s.count),
		P50:   s.digest.Quantile(0.50),
		P95:   s.digest.Quantile(0.95),
		P99:   s.digest.Quantile(0.99),
	}
}

// Reset clears all recorded values. Called when the result store is wiped.
func (s *ScoreStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest = tdigest.NewWithCompression(digestCompression)
	s.count = 0
	s.sum = 0
	s.min = math.Inf(1)
	s.max = math.Inf(-1)
}
