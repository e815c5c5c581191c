package orchestrator

import (
	"sync"
)

// SequenceStatus is a snapshot of a Sequence.
type SequenceStatus struct {
	Active bool
	Label  string
	Index  int
	Total  int

	// Current is the task of the active step. Zero when idle.
	Current SearchTask
}

// Sequence is the state machine behind a multi-step search:
//
//	Idle -> Active(0) -> ... -> Active(n-1) -> Idle   (complete)
//	Active(i) -> Idle                                 (stopped)
//
// Each active step is bound to the run ID of the worker started for it and
// advances only when that worker completes. Sequence never calls out while
// holding its lock.
type Sequence struct {
	mu      sync.Mutex
	active  bool
	label   string
	tasks   []SearchTask
	index   int
	runID   string
	waiting bool // step started, worker not yet bound
}

// NewSequence returns an idle sequence.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Begin moves an idle sequence to its first step and returns that step's
// task. It fails with ErrBusy if a sequence is already active and with
// ErrNoTasks if tasks is empty.
func (s *Sequence) Begin(label string, tasks []SearchTask) (SearchTask, error) {
	if len(tasks) == 0 {
		return SearchTask{}, ErrNoTasks
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return SearchTask{}, ErrBusy
	}
	s.active = true
	s.label = label
	s.tasks = append([]SearchTask(nil), tasks...)
	s.index = 0
	s.runID = ""
	s.waiting = true
	return s.tasks[0], nil
}

// Bind attaches the worker run ID to the step that is waiting for one. It
// reports whether the run belongs to the sequence.
func (s *Sequence) Bind(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || !s.waiting {
		return false
	}
	s.runID = runID
	s.waiting = false
	return true
}

// Pending reports whether step index is active and still waiting for its
// worker.
func (s *Sequence) Pending(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.waiting && s.index == index
}

// Advance handles completion of the worker runID. ok is false when the run
// is not the current step's (stale or unrelated completions). Otherwise
// finished is the step that just completed, and either done is true (the
// sequence is back to Idle) or next is the task to start now.
func (s *Sequence) Advance(runID string) (finished, next SearchTask, done, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.waiting || runID == "" || runID != s.runID {
		return SearchTask{}, SearchTask{}, false, false
	}

	finished = s.tasks[s.index]
	s.index++
	s.runID = ""

	if s.index >= len(s.tasks) {
		s.resetLocked()
		return finished, SearchTask{}, true, true
	}
	s.waiting = true
	return finished, s.tasks[s.index], false, true
}

// Stop returns the sequence to Idle, clearing its tasks. It returns the
// status just before stopping and whether the sequence was active.
func (s *Sequence) Stop() (SequenceStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.statusLocked()
	if !s.active {
		return st, false
	}
	s.resetLocked()
	return st, true
}

// Active reports whether a sequence is running.
func (s *Sequence) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Status returns a snapshot.
func (s *Sequence) Status() SequenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Sequence) statusLocked() SequenceStatus {
	st := SequenceStatus{
		Active: s.active,
		Label:  s.label,
		Index:  s.index,
		Total:  len(s.tasks),
	}
	if s.active && s.index < len(s.tasks) {
		st.Current = s.tasks[s.index]
	}
	return st
}

func (s *Sequence) resetLocked() {
	s.active = false
	s.label = ""
	s.tasks = nil
	s.index = 0
	s.runID = ""
	s.waiting = false
}
