//go:build windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// killProcessTree runs taskkill /T to take child processes down with the
// worker, then kills the worker handle directly.
func killProcessTree(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	treeErr := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
	procErr := cmd.Process.Kill()
	if errors.Is(procErr, os.ErrProcessDone) {
		procErr = nil
	}
	if treeErr != nil && procErr != nil {
		return errors.Join(treeErr, procErr)
	}
	return nil
}

func extractExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
