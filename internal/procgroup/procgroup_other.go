//go:build !linux && !windows

package procgroup

import "syscall"

// Pdeathsig is Linux-only.
func setParentDeathSignal(*syscall.SysProcAttr) {}
