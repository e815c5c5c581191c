// Package process builds the command lines for external worker processes.
package process

import (
	"context"
	"os/exec"
)

// Runner creates executable commands for workers.
// This interface allows the supervisor to be process-agnostic.
type Runner interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns the executable name, used to find stray processes.
	Name() string
}

var _ Runner = (*WorkerRunner)(nil)
