// Package supervisor manages the lifecycle of external seed-search workers.
package supervisor

// State represents the lifecycle state of a worker process.
type State int

const (
	// StateStarting indicates the worker process is being spawned.
	StateStarting State = iota

	// StateRunning indicates the worker is running and its output is being read.
	StateRunning

	// StateStopping indicates a kill has been requested.
	StateStopping

	// StateExited indicates the process has exited and been reaped.
	StateExited
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// IsActive returns true while the worker may still produce output.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// Reason describes why a completion callback fired.
type Reason int

const (
	// ReasonExited means a worker exited and its output was fully read.
	ReasonExited Reason = iota

	// ReasonStopped means StopAll was called.
	ReasonStopped
)

// String returns a human-readable name for the reason.
func (r Reason) String() string {
	if r == ReasonStopped {
		return "stopped"
	}
	return "exited"
}
