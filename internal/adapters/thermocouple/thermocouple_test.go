package thermocouple

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/domain"
)

type flakyDAQ struct {
	openErr error
	fail    atomic.Bool
	closes  atomic.Int64
}

func (d *flakyDAQ) Open(context.Context) error { return d.openErr }
func (d *flakyDAQ) Read(context.Context) ([]float64, error) {
	if d.fail.Load() {
		return nil, errors.New("daq read timeout")
	}
	return []float64{21.234, 22.5, 23.0, 24.999}, nil
}
func (d *flakyDAQ) Close() error { d.closes.Add(1); return nil }

func TestAdapterWritesFourChannels(t *testing.T) {
	root := t.TempDir()
	a := NewWithDAQ(Config{SampleRate: 100}, &flakyDAQ{}, base.Options{})
	require.True(t, a.Probe(context.Background()))
	require.NoError(t, a.Initialize(context.Background(), root))

	tok := domain.NewCancelToken(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(tok) }()
	require.Eventually(t, func() bool { return a.Stats().Samples >= 3 }, 2*time.Second, 5*time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)
	require.NoError(t, a.Shutdown())

	f, err := os.Open(filepath.Join(root, FileName))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"Timestamp", "Relative Time (s)", "Channel 0 (°C)", "Channel 1 (°C)", "Channel 2 (°C)", "Channel 3 (°C)"}, rows[0])
	require.Equal(t, int(a.Stats().Samples), len(rows)-1)
	require.Equal(t, []string{"21.23", "22.50", "23.00", "25.00"}, rows[1][2:])
}

func TestAdapterSustainedFailureStopsOnlyItself(t *testing.T) {
	daq := &flakyDAQ{}
	daq.fail.Store(true)
	a := NewWithDAQ(Config{SampleRate: 200, MaxFailures: 3}, daq, base.Options{})
	require.NoError(t, a.Initialize(context.Background(), t.TempDir()))

	tok := domain.NewCancelToken(context.Background())
	require.ErrorIs(t, a.Run(tok), domain.ErrStreaming)
	require.False(t, tok.IsSet())

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
	require.EqualValues(t, 1, daq.closes.Load())
}

func TestProbeFailsWhenDAQMissing(t *testing.T) {
	a := NewWithDAQ(Config{}, &flakyDAQ{openErr: errors.New("device not found")}, base.Options{})
	require.False(t, a.Probe(context.Background()))
	require.ErrorIs(t, a.Initialize(context.Background(), t.TempDir()), domain.ErrInitialization)
	require.NoError(t, a.Shutdown())
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	require.NoError(t, c.Validate())
	require.Equal(t, 4, c.Channels)
	require.Equal(t, 3.5, c.SampleRate)
	rate := 3.5
	require.Equal(t, time.Duration(float64(time.Second)/rate), c.Period())
}

func TestSimDAQ(t *testing.T) {
	d := NewSimDAQ(4)
	_, err := d.Read(context.Background())
	require.Error(t, err)
	require.NoError(t, d.Open(context.Background()))
	v, err := d.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, v, 4)
	require.NoError(t, d.Close())
}
