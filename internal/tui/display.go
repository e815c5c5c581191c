package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-seed-swarm/internal/parser"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramDisplay forwards orchestrator events to the dashboard as
// messages. The sender may be attached after construction, since the
// program usually needs the orchestrator before it exists; events that
// arrive earlier are dropped.
type ProgramDisplay struct {
	mu     sync.RWMutex
	sender Sender
}

var _ orchestrator.Display = (*ProgramDisplay)(nil)

// NewProgramDisplay creates a display with no sender attached.
func NewProgramDisplay() *ProgramDisplay {
	return &ProgramDisplay{}
}

// Attach sets the program messages are sent to.
func (d *ProgramDisplay) Attach(s Sender) {
	d.mu.Lock()
	d.sender = s
	d.mu.Unlock()
}

func (d *ProgramDisplay) send(msg tea.Msg) {
	d.mu.RLock()
	s := d.sender
	d.mu.RUnlock()
	if s != nil {
		s.Send(msg)
	}
}

func (d *ProgramDisplay) ResultsChanged() {
	d.send(ResultsChangedMsg{})
}

func (d *ProgramDisplay) Status(s parser.Status) {
	d.send(StatusMsg{Status: s})
}

func (d *ProgramDisplay) Finished(f orchestrator.Finish) {
	d.send(FinishedMsg{Finish: f})
}

func (d *ProgramDisplay) Diagnostic(l logging.Line) {
	d.send(DiagnosticMsg{Line: l})
}
