package orchestrator

import (
	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/parser"
)

// Outcome describes how a search or sequence ended.
type Outcome int

const (
	// OutcomeComplete means the worker (or every step) ran to the end.
	OutcomeComplete Outcome = iota

	// OutcomeStopped means Stop was called.
	OutcomeStopped

	// OutcomeFailed means a step could not be started.
	OutcomeFailed
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeStopped:
		return "stopped"
	case OutcomeFailed:
		return "failed"
	default:
		return "complete"
	}
}

// Finish is delivered to Display.Finished once per search or sequence.
type Finish struct {
	Outcome  Outcome
	Sequence bool
	Label    string

	// ExitCode is the last worker's exit code. -1 if unknown.
	ExitCode int
	Err      error
}

// Display is the consumer of orchestrator events. Methods are called from
// worker goroutines and must not block.
type Display interface {
	// ResultsChanged means new rows may be in the sink. It fires at a
	// bounded rate.
	ResultsChanged()

	// Status carries the latest worker progress line.
	Status(status parser.Status)

	// Finished is called when a search or sequence ends.
	Finished(f Finish)

	// Diagnostic receives every console line.
	Diagnostic(line logging.Line)
}

// NopDisplay ignores every event.
type NopDisplay struct{}

func (NopDisplay) ResultsChanged() {}

func (NopDisplay) Status(parser.Status) {}

func (NopDisplay) Finished(Finish) {}

func (NopDisplay) Diagnostic(logging.Line) {}
