//go:build unix

package external

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// writeDevice creates a fake device executable honoring the command contract.
func writeDevice(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakebox")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const cooperative = `
case "$1" in
  --check) echo "box present"; exit 0 ;;
  --collect) trap 'echo "stopping"; exit 0' TERM; echo "t,v" > "$2"; while true; do echo "1,2" >> "$2"; sleep 0.01; done ;;
  --record) trap 'exit 0' TERM; touch "$2/frame_0001.raw"; while true; do sleep 0.01; done ;;
esac
exit 2`

func TestProbeHonorsExitCode(t *testing.T) {
	a, err := New(Config{Command: writeDevice(t, cooperative)}, base.Options{})
	require.NoError(t, err)
	require.True(t, a.Probe(context.Background()))

	absent, err := New(Config{Command: writeDevice(t, "exit 1")}, base.Options{})
	require.NoError(t, err)
	require.False(t, absent.Probe(context.Background()))

	missing, err := New(Config{Command: filepath.Join(t.TempDir(), "nope")}, base.Options{})
	require.NoError(t, err)
	require.False(t, missing.Probe(context.Background()))
}

func TestProbeTimesOut(t *testing.T) {
	a, err := New(Config{Command: writeDevice(t, "sleep 5"), CheckTimeout: 100 * time.Millisecond}, base.Options{})
	require.NoError(t, err)
	start := time.Now()
	require.False(t, a.Probe(context.Background()))
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestCollectRunsUntilTokenAndTerminates(t *testing.T) {
	root := t.TempDir()
	a, err := New(Config{Name: "lembox", Command: writeDevice(t, cooperative), Grace: 2 * time.Second}, base.Options{})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background(), root))

	tok := domain.NewCancelToken(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(tok) }()

	out := filepath.Join(root, "lembox_data.csv")
	require.Eventually(t, func() bool {
		info, err := os.Stat(out)
		return err == nil && info.Size() > 8
	}, 3*time.Second, 10*time.Millisecond)
	require.NotZero(t, a.PID())

	tok.Set(domain.ErrOperatorStop)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("device process was not terminated")
	}
	require.Zero(t, a.PID())
	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
}

func TestRecordModeCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	a, err := New(Config{Name: "xiris", Command: writeDevice(t, cooperative), Mode: "record", Raw: true}, base.Options{})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background(), root))

	info, err := os.Stat(filepath.Join(root, "xiris"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	tok := domain.NewCancelToken(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(tok) }()
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(root, "xiris", "frame_0001.raw"))
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)
}

func TestEarlyExitEscalatesWhenConfigured(t *testing.T) {
	a, err := New(Config{Name: "box", Command: writeDevice(t, `echo "lost connection" >&2; exit 3`), AbortOnExit: true}, base.Options{})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background(), t.TempDir()))

	tok := domain.NewCancelToken(context.Background())
	err = a.Run(tok)
	require.ErrorIs(t, err, domain.ErrStreaming)
	require.True(t, tok.IsSet())
}

func TestEarlyExitStaysLocalByDefault(t *testing.T) {
	a, err := New(Config{Name: "box", Command: writeDevice(t, "exit 0")}, base.Options{})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background(), t.TempDir()))

	tok := domain.NewCancelToken(context.Background())
	require.ErrorIs(t, a.Run(tok), domain.ErrStreaming)
	require.False(t, tok.IsSet())
}

func TestConfigValidation(t *testing.T) {
	c := Config{Command: "/opt/lem/LEMBox.exe"}
	c.ApplyDefaults()
	require.NoError(t, c.Validate())
	require.Equal(t, "LEMBox", c.Name)
	require.Equal(t, "LEMBox_data.csv", c.Output)

	c = Config{Command: "x", Output: "../escape"}
	c.ApplyDefaults()
	require.Error(t, c.Validate())

	c = Config{}
	c.ApplyDefaults()
	require.Error(t, c.Validate())
}

func TestLineLoggerSplitsLines(t *testing.T) {
	l := newLineLogger(base.New("x", domain.KindExternalDevice, base.Options{}).Logger, "stdout")
	n, err := l.Write([]byte("first\nsec"))
	require.NoError(t, err)
	require.Equal(t, 9, n)
	_, _ = l.Write([]byte("ond\n"))
	require.Empty(t, l.buf)
	_, _ = l.Write([]byte("tail"))
	l.Flush()
	require.Empty(t, l.buf)
}
