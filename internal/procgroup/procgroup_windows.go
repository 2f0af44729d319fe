//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

func configureGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func interruptGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return ErrNotStarted
	}
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(cmd.Process.Pid))
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return ErrNotStarted
	}
	return cmd.Process.Kill()
}
