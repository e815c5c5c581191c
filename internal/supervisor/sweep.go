package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	psprocess "github.com/shirou/gopsutil/v4/process"
)

// Sweeper kills stray worker processes by executable name and returns how
// many it killed.
type Sweeper func(ctx context.Context, name string) (int, error)

// SweepByName kills every process on the host, other than this one, whose
// executable name matches name (case-insensitive). It covers workers left
// behind by a previous run that this process never tracked.
func SweepByName(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}

	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	self := int32(os.Getpid())
	killed := 0
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		if !processMatches(ctx, p, name) {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			continue
		}
		killed++
	}
	return killed, nil
}

func processMatches(ctx context.Context, p *psprocess.Process, name string) bool {
	if n, err := p.NameWithContext(ctx); err == nil && strings.EqualFold(n, name) {
		return true
	}
	if exe, err := p.ExeWithContext(ctx); err == nil && exe != "" {
		return strings.EqualFold(filepath.Base(exe), name)
	}
	return false
}
