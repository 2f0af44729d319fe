// Package procgroup runs child processes in their own process group so a
// cancelled call takes every descendant down with it.
package procgroup

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultGracePeriod is how long a cancelled process gets between the
// interrupt and the kill.
const DefaultGracePeriod = 2 * time.Second

// ErrNotStarted is returned when a command has no process to wait for.
var ErrNotStarted = errors.New("process not started")

// Run starts cmd in its own process group and waits for it. When ctx ends
// first, the group is interrupted, given grace to exit, and then killed
// along with anything left in it.
// The error from cmd.Wait is returned in every case.
func Run(ctx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	configureGroup(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	return wait(ctx, cmd, grace)
}

func wait(ctx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	if cmd.Process == nil {
		return ErrNotStarted
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	_ = interruptGroup(cmd)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	var err error
	select {
	case err = <-done:
	case <-timer.C:
		_ = killGroup(cmd)
		err = <-done
	}
	// Members that ignore the interrupt, such as background jobs of a shell,
	// outlive the leader.
	_ = killGroup(cmd)
	return err
}
