//go:build !windows

package adapter

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcessGroup sends SIGTERM to the process group led by process.
func terminateProcessGroup(process *os.Process) error {
	return signalProcessGroup(process.Pid, syscall.SIGTERM)
}

// killProcessGroup sends SIGKILL to the process group of pid.
func killProcessGroup(pid int) error {
	return signalProcessGroup(pid, syscall.SIGKILL)
}

// signalProcessGroup signals the group led by pid. Workers are started with
// Setpgid, so the group id is the leader's pid and stays valid after the
// leader is reaped for as long as any member is alive.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return errors.New("invalid pid")
	}

	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}

	return err
}
