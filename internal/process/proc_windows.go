//go:build windows

package process

import (
	"os"
	"os/exec"
)

// setProcGroup is a no-op on Windows; there is no process-group kill.
func setProcGroup(cmd *exec.Cmd) {}

// signalTerm has no graceful equivalent on Windows, so kill directly.
func signalTerm(p *os.Process) error {
	return p.Kill()
}

// killProcessGroup kills the process itself on Windows.
func killProcessGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
