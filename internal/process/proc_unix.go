//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group so a kill can
// reach any grandchildren the agent CLI spawns.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalTerm asks the process group to exit gracefully.
func signalTerm(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

// killProcessGroup force-kills the whole process group.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
