package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-seed-swarm/internal/parser"
	"github.com/randomizedcoder/go-seed-swarm/internal/sink"
	"github.com/randomizedcoder/go-seed-swarm/internal/supervisor"
	"github.com/randomizedcoder/go-seed-swarm/internal/timeseries"
)

// maxConsoleLines bounds the console pane's history.
const maxConsoleLines = 200

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// ResultsChangedMsg means the result store has new rows.
type ResultsChangedMsg struct{}

// ResultsMsg carries a freshly queried result set.
type ResultsMsg struct {
	Results *sink.ResultSet
	Err     error
}

// StatusMsg carries the latest worker status line.
type StatusMsg struct {
	Status parser.Status
}

// FinishedMsg is sent when a search or sequence ends.
type FinishedMsg struct {
	Finish orchestrator.Finish
}

// DiagnosticMsg carries one console line.
type DiagnosticMsg struct {
	Line logging.Line
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Controller is the part of the orchestrator the dashboard drives.
type Controller interface {
	Results(opts sink.QueryOptions) (*sink.ResultSet, error)
	Stop()
	Busy() bool
	SequenceStatus() orchestrator.SequenceStatus
	Workers() []supervisor.WorkerInfo
	IngestRate() timeseries.RateStats
	RequestRefresh()
}

var _ Controller = (*orchestrator.Orchestrator)(nil)

// Config holds TUI configuration.
type Config struct {
	ConfigName  string
	MetricsAddr string
	QueryLimit  int
	Controller  Controller

	// Recent seeds the console pane with lines logged before start.
	Recent []logging.Line
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	configName  string
	metricsAddr string
	controller  Controller
	query       sink.QueryOptions

	// Current state
	results    *sink.ResultSet
	resultsErr error
	status     parser.Status
	lines      []logging.Line
	sequence   orchestrator.SequenceStatus
	workers    []supervisor.WorkerInfo
	rate       timeseries.RateStats
	busy       bool
	finish     *orchestrator.Finish
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	query := sink.DefaultQueryOptions()
	if cfg.QueryLimit > 0 {
		query.Limit = cfg.QueryLimit
	}

	m := Model{
		configName:  cfg.ConfigName,
		metricsAddr: cfg.MetricsAddr,
		controller:  cfg.Controller,
		query:       query,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
	for _, l := range cfg.Recent {
		m.appendLine(l)
	}
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.loadResults())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "s":
			return m, m.stop()
		case "r":
			// Force refresh
			if m.controller != nil {
				m.controller.RequestRefresh()
			}
			return m, nil
		case "o":
			m.query.Descending = !m.query.Descending
			return m, m.loadResults()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.controller != nil {
			m.sequence = m.controller.SequenceStatus()
			m.workers = m.controller.Workers()
			m.rate = m.controller.IngestRate()
			m.busy = m.controller.Busy()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case ResultsChangedMsg:
		return m, m.loadResults()

	case ResultsMsg:
		if msg.Err != nil {
			m.resultsErr = msg.Err
			return m, nil
		}
		m.results = msg.Results
		m.resultsErr = nil
		m.lastUpdate = time.Now()
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case FinishedMsg:
		f := msg.Finish
		m.finish = &f
		m.busy = false
		m.sequence = orchestrator.SequenceStatus{}
		return m, m.loadResults()

	case DiagnosticMsg:
		m.appendLine(msg.Line)
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// loadResults queries the controller off the event loop.
func (m Model) loadResults() tea.Cmd {
	c := m.controller
	if c == nil {
		return nil
	}
	opts := m.query
	return func() tea.Msg {
		rs, err := c.Results(opts)
		return ResultsMsg{Results: rs, Err: err}
	}
}

// stop runs Stop off the event loop. Stop reports back through the display,
// which sends to this program and would block if called from Update.
func (m Model) stop() tea.Cmd {
	c := m.controller
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		c.Stop()
		return nil
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// State returns the coarse search state for the header.
func (m Model) State() SearchState {
	switch {
	case m.sequence.Active:
		return StateSequence
	case m.busy:
		return StateSearching
	case m.finish == nil:
		return StateIdle
	}
	switch m.finish.Outcome {
	case orchestrator.OutcomeStopped:
		return StateStopped
	case orchestrator.OutcomeFailed:
		return StateFailed
	default:
		return StateComplete
	}
}

// SequenceProgress returns the fraction of sequence steps finished.
func (m Model) SequenceProgress() float64 {
	if m.sequence.Total == 0 {
		return 0
	}
	return float64(m.sequence.Index) / float64(m.sequence.Total)
}

// ResultCount returns the number of rows on display.
func (m Model) ResultCount() int {
	return m.results.Len()
}

func (m *Model) appendLine(l logging.Line) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxConsoleLines {
		m.lines = m.lines[len(m.lines)-maxConsoleLines:]
	}
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
