//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func start(t *testing.T, script string) (*exec.Cmd, chan error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return cmd, waitCh
}

func TestTerminateCooperative(t *testing.T) {
	cmd, waitCh := start(t, "sleep 30 & wait")

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, cmd.Process.Pid, pgid)

	begin := time.Now()
	err = Terminate(cmd, waitCh, 2*time.Second)
	require.Error(t, err, "SIGTERM should end the shell with a signal status")
	require.Less(t, time.Since(begin), 2*time.Second)
}

func TestTerminateEscalatesAfterGrace(t *testing.T) {
	cmd, waitCh := start(t, "trap '' TERM; while true; do sleep 0.05; done")
	time.Sleep(100 * time.Millisecond)

	begin := time.Now()
	err := Terminate(cmd, waitCh, 200*time.Millisecond)
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(begin), 200*time.Millisecond)
}

func TestTerminateNilCommand(t *testing.T) {
	require.NoError(t, Terminate(nil, nil, time.Millisecond))
	require.NoError(t, Terminate(exec.Command("true"), nil, time.Millisecond))
}
