// Package procgroup starts helper executables in their own process group and
// stops them cooperatively before escalating.
package procgroup

import (
	"os/exec"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/log"
)

// Set configures the command to start in a new process group.
// Must be called before cmd.Start for Terminate to reach grandchildren.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate asks the process group to exit, waits up to grace for waitCh to
// deliver the Wait result, then force-kills. waitCh is always drained, so the
// returned error is the process exit status. Safe on nil or unstarted commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := log.WithComponent("procgroup")
	pid := cmd.Process.Pid

	if err := interrupt(cmd); err != nil {
		logger.Debug().Err(err).Int(log.FieldPID, pid).Msg("interrupt failed")
	}

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	logger.Warn().Int(log.FieldPID, pid).Dur("grace", grace).
		Str(log.FieldEvent, "proc.force_kill").
		Msg("grace period exceeded, killing process group")
	if err := kill(cmd); err != nil {
		logger.Debug().Err(err).Int(log.FieldPID, pid).Msg("kill failed")
	}
	return <-waitCh
}
