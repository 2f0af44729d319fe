//go:build !windows

package procgroup

import (
	"os/exec"
	"syscall"
)

func configureGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	setParentDeathSignal(cmd.SysProcAttr)
}

func interruptGroup(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGINT)
}

func killGroup(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}

// signalGroup targets the whole group so tools that fork (prettier via
// node, sqlfluff via python) do not leave orphans behind.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return ErrNotStarted
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}
