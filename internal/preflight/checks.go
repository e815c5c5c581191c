// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	// minFreeDiskMB is the free space below which the database dir warns.
	minFreeDiskMB = 100

	// memPerThreadMB is a rough per-thread working set for the worker.
	memPerThreadMB = 16

	checkTimeout = 5 * time.Second
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll inspects.
type Options struct {
	WorkerPath  string
	WorkDir     string
	DatabaseDir string
	Threads     int
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks. Warnings never fail the result.
func RunAll(ctx context.Context, opts Options) *Result {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	result := &Result{
		Checks: make([]Check, 0, 6),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkWorkerBinary(opts.WorkerPath))
	if opts.WorkDir != "" {
		add(checkWorkDir(opts.WorkDir))
	}
	add(checkDatabaseDir(opts.DatabaseDir))
	add(checkFileDescriptors())
	add(checkDiskSpace(ctx, opts.DatabaseDir))
	add(checkMemory(ctx, opts.Threads))

	return result
}

// checkWorkerBinary verifies the worker executable exists and can be run.
func checkWorkerBinary(path string) Check {
	if path == "" {
		return Check{
			Name:    "worker_binary",
			Passed:  false,
			Message: "no worker path configured",
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Check{
			Name:    "worker_binary",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}
	if info.IsDir() {
		return Check{
			Name:    "worker_binary",
			Passed:  false,
			Message: fmt.Sprintf("%s is a directory", path),
		}
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return Check{
			Name:    "worker_binary",
			Passed:  false,
			Message: fmt.Sprintf("%s is not executable (mode %s)", path, info.Mode().Perm()),
		}
	}

	return Check{
		Name:    "worker_binary",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkWorkDir verifies the worker's working directory exists.
func checkWorkDir(dir string) Check {
	info, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}
	return Check{
		Name:    "work_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkDatabaseDir verifies the database directory can be created and
// written.
func checkDatabaseDir(dir string) Check {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "database_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "database_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return Check{
		Name:    "database_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", abs),
	}
}

// checkDiskSpace warns when the database volume is nearly full.
func checkDiskSpace(ctx context.Context, dir string) Check {
	if dir == "" {
		dir = "."
	}
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return Check{
			Name:    "disk_space",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	freeMB := int(usage.Free / (1024 * 1024))
	return Check{
		Name:     "disk_space",
		Required: minFreeDiskMB,
		Actual:   freeMB,
		Passed:   true, // Don't fail on this
		Warning:  freeMB < minFreeDiskMB,
		Message:  fmt.Sprintf("%d MB free on %s", freeMB, usage.Path),
	}
}

// checkMemory warns when available memory looks too small for the thread
// count.
func checkMemory(ctx context.Context, threads int) Check {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Check{
			Name:    "memory",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	if threads < 1 {
		threads = 1
	}
	required := threads * memPerThreadMB
	availableMB := int(vm.Available / (1024 * 1024))
	return Check{
		Name:     "memory",
		Required: required,
		Actual:   availableMB,
		Passed:   true,
		Warning:  availableMB < required,
		Message:  fmt.Sprintf("%d MB available (recommend %d for %d threads)", availableMB, required, threads),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "worker_binary":
		return "set --worker-path to the search executable (chmod +x if needed)"
	case "work_dir":
		return "create the directory or fix --work-dir"
	case "database_dir":
		return "choose a writable --database-dir"
	default:
		return "see documentation"
	}
}
