package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-seed-swarm/internal/parser"
	"github.com/randomizedcoder/go-seed-swarm/internal/sink"
	"github.com/randomizedcoder/go-seed-swarm/internal/supervisor"
	"github.com/randomizedcoder/go-seed-swarm/internal/timeseries"
)

// =============================================================================
// Mock Controller
// =============================================================================

type mockController struct {
	results  *sink.ResultSet
	err      error
	busy     bool
	sequence orchestrator.SequenceStatus
	workers  []supervisor.WorkerInfo
	rate     timeseries.RateStats

	stops     int
	refreshes int
	lastQuery sink.QueryOptions
}

func (c *mockController) Results(opts sink.QueryOptions) (*sink.ResultSet, error) {
	c.lastQuery = opts
	return c.results, c.err
}

func (c *mockController) Stop()                                       { c.stops++ }
func (c *mockController) Busy() bool                                  { return c.busy }
func (c *mockController) SequenceStatus() orchestrator.SequenceStatus { return c.sequence }
func (c *mockController) Workers() []supervisor.WorkerInfo            { return c.workers }
func (c *mockController) IngestRate() timeseries.RateStats            { return c.rate }
func (c *mockController) RequestRefresh()                             { c.refreshes++ }

func sampleResults() *sink.ResultSet {
	return &sink.ResultSet{
		Columns: []string{"Seed", "Score", "Count"},
		Records: []sink.Record{
			{Key: "ABCD1234", Values: []int64{42, 7}},
			{Key: "CAT11", Values: []int64{9, 1}},
		},
	}
}

// =============================================================================
// Tests: New
// =============================================================================

func TestNew(t *testing.T) {
	model := New(Config{
		ConfigName:  "erratic",
		MetricsAddr: "localhost:17091",
		QueryLimit:  50,
		Recent:      []logging.Line{{Kind: logging.KindApp, Text: "hello"}},
	})

	if model.configName != "erratic" {
		t.Errorf("configName = %s, want erratic", model.configName)
	}
	if model.metricsAddr != "localhost:17091" {
		t.Errorf("metricsAddr = %s, want localhost:17091", model.metricsAddr)
	}
	if model.query.Limit != 50 {
		t.Errorf("query.Limit = %d, want 50", model.query.Limit)
	}
	if model.query.SortColumn != sink.ScoreColumn || !model.query.Descending {
		t.Errorf("query = %+v, want Score descending", model.query)
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", model.width, model.height)
	}
	if len(model.lines) != 1 {
		t.Errorf("lines = %d, want 1", len(model.lines))
	}
	if model.State() != StateIdle {
		t.Errorf("State() = %v, want Idle", model.State())
	}
}

// =============================================================================
// Tests: Init
// =============================================================================

func TestModel_Init(t *testing.T) {
	model := New(Config{Controller: &mockController{}})
	if cmd := model.Init(); cmd == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"s", false},
		{"r", false},
		{"x", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			model := New(Config{Controller: &mockController{}})
			updated, _ := model.Update(keyMsg(tt.key))
			m := updated.(Model)

			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}
			if tt.wantQuit && m.View() != "" {
				t.Error("View() should be empty after quitting")
			}
		})
	}
}

func TestModel_Update_StopAndRefreshKeys(t *testing.T) {
	ctrl := &mockController{}
	model := New(Config{Controller: ctrl})

	updated, cmd := model.Update(keyMsg("s"))
	if ctrl.stops != 0 {
		t.Error("Stop must not run inside Update")
	}
	if cmd == nil {
		t.Fatal("stop key should return a command")
	}
	if msg := cmd(); msg != nil {
		t.Errorf("stop command msg = %#v, want nil", msg)
	}
	updated, _ = updated.Update(keyMsg("r"))
	updated.Update(keyMsg("r"))

	if ctrl.stops != 1 {
		t.Errorf("stops = %d, want 1", ctrl.stops)
	}
	if ctrl.refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", ctrl.refreshes)
	}
}

func TestModel_Update_SortToggle(t *testing.T) {
	ctrl := &mockController{results: sampleResults()}
	model := New(Config{Controller: ctrl})

	updated, cmd := model.Update(keyMsg("o"))
	m := updated.(Model)
	if m.query.Descending {
		t.Error("Descending should be toggled off")
	}
	if cmd == nil {
		t.Fatal("sort toggle should reload results")
	}
	msg := cmd()
	if _, ok := msg.(ResultsMsg); !ok {
		t.Fatalf("cmd() = %T, want ResultsMsg", msg)
	}
	if ctrl.lastQuery.Descending {
		t.Error("query should be ascending")
	}
}

func TestModel_Update_NilController(t *testing.T) {
	model := New(Config{})
	for _, key := range []string{"s", "r", "o"} {
		model.Update(keyMsg(key))
	}
	updated, _ := model.Update(TickMsg(time.Now()))
	if updated.(Model).busy {
		t.Error("busy should stay false without a controller")
	}
}

// =============================================================================
// Tests: Update - Other Messages
// =============================================================================

func TestModel_Update_WindowSize(t *testing.T) {
	model := New(Config{})
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m := updated.(Model)

	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
}

func TestModel_Update_Tick(t *testing.T) {
	ctrl := &mockController{
		busy:     true,
		workers:  []supervisor.WorkerInfo{{RunID: "r1"}},
		rate:     timeseries.RateStats{Total: 1500, Short: 12.5},
		sequence: orchestrator.SequenceStatus{Active: true, Label: "LOL", Index: 1, Total: 4},
	}
	model := New(Config{Controller: ctrl})

	updated, cmd := model.Update(TickMsg(time.Now()))
	m := updated.(Model)

	if cmd == nil {
		t.Error("TickMsg should schedule the next tick")
	}
	if !m.busy || len(m.workers) != 1 {
		t.Errorf("busy=%v workers=%d, want true/1", m.busy, len(m.workers))
	}
	if m.rate.Total != 1500 {
		t.Errorf("rate.Total = %d, want 1500", m.rate.Total)
	}
	if m.State() != StateSequence {
		t.Errorf("State() = %v, want Sequence", m.State())
	}
	if got := m.SequenceProgress(); got != 0.25 {
		t.Errorf("SequenceProgress() = %v, want 0.25", got)
	}
}

func TestModel_Update_ResultsChanged(t *testing.T) {
	ctrl := &mockController{results: sampleResults()}
	model := New(Config{Controller: ctrl})

	updated, cmd := model.Update(ResultsChangedMsg{})
	if cmd == nil {
		t.Fatal("ResultsChangedMsg should reload results")
	}
	updated, _ = updated.Update(cmd())
	m := updated.(Model)

	if m.ResultCount() != 2 {
		t.Errorf("ResultCount() = %d, want 2", m.ResultCount())
	}
}

func TestModel_Update_ResultsError(t *testing.T) {
	model := New(Config{})
	updated, _ := model.Update(ResultsMsg{Results: sampleResults()})
	updated, _ = updated.Update(ResultsMsg{Err: errors.New("disk gone")})
	m := updated.(Model)

	if m.resultsErr == nil {
		t.Error("resultsErr should be set")
	}
	if m.ResultCount() != 2 {
		t.Error("previous results should be kept on error")
	}
}

func TestModel_Update_Status(t *testing.T) {
	model := New(Config{})
	updated, _ := model.Update(StatusMsg{Status: parser.Status{Message: "Searching", Metrics: "1K/s"}})
	m := updated.(Model)

	if m.status.Message != "Searching" || m.status.Metrics != "1K/s" {
		t.Errorf("status = %+v", m.status)
	}
}

func TestModel_Update_Finished(t *testing.T) {
	tests := []struct {
		outcome orchestrator.Outcome
		want    SearchState
	}{
		{orchestrator.OutcomeComplete, StateComplete},
		{orchestrator.OutcomeStopped, StateStopped},
		{orchestrator.OutcomeFailed, StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			model := New(Config{})
			model.busy = true
			model.sequence = orchestrator.SequenceStatus{Active: true, Total: 3}

			updated, _ := model.Update(FinishedMsg{Finish: orchestrator.Finish{Outcome: tt.outcome}})
			m := updated.(Model)

			if m.State() != tt.want {
				t.Errorf("State() = %v, want %v", m.State(), tt.want)
			}
			if m.sequence.Active {
				t.Error("sequence should be cleared")
			}
		})
	}
}

func TestModel_Update_DiagnosticBounded(t *testing.T) {
	model := New(Config{})
	var updated tea.Model = model
	for i := 0; i < maxConsoleLines+25; i++ {
		updated, _ = updated.Update(DiagnosticMsg{Line: logging.Line{Text: "line"}})
	}
	if n := len(updated.(Model).lines); n != maxConsoleLines {
		t.Errorf("lines = %d, want %d", n, maxConsoleLines)
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	model := New(Config{})
	updated, cmd := model.Update(QuitMsg{})
	if !updated.(Model).quitting {
		t.Error("QuitMsg should set quitting")
	}
	if cmd == nil {
		t.Error("QuitMsg should return tea.Quit")
	}
}

func TestSendQuit_NilProgram(t *testing.T) {
	SendQuit(nil)
}
