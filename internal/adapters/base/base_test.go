package base

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

func TestShutdownRunsOnceInReverse(t *testing.T) {
	b := New("", domain.KindRobot, Options{})
	require.Equal(t, "robot", b.Name())

	var order []int
	b.OnShutdown(func() error { order = append(order, 1); return nil })
	b.OnShutdown(func() error { order = append(order, 2); return errors.New("busy") })

	err := b.Shutdown()
	require.ErrorIs(t, err, domain.ErrShutdown)
	require.Equal(t, []int{2, 1}, order)

	require.NoError(t, b.Shutdown())
	require.Equal(t, []int{2, 1}, order)
}

func TestShutdownWithoutInitialize(t *testing.T) {
	b := New("tc", domain.KindThermocouple, Options{})
	require.NoError(t, b.Shutdown())
	require.NoError(t, b.Shutdown())
}

func TestBeginInitOnlyOnce(t *testing.T) {
	b := New("tc", domain.KindThermocouple, Options{})
	require.NoError(t, b.BeginInit())
	require.ErrorIs(t, b.BeginInit(), domain.ErrInitialization)
}

func TestOpenCSVDecoratesAndClosesAtShutdown(t *testing.T) {
	root := t.TempDir()
	var decorated int
	b := New("tc", domain.KindThermocouple, Options{
		Decorate: []ports.SinkDecorator{func(s ports.RecordSink) ports.RecordSink {
			decorated++
			return s
		}},
	})

	s, err := b.OpenCSV(root, "thermocouple_data.csv", sink.CSVConfig{Header: []string{"Timestamp"}})
	require.NoError(t, err)
	require.Equal(t, 1, decorated)

	require.NoError(t, b.Shutdown())
	require.ErrorIs(t, s.Write(&domain.CaptureSample{}), sink.ErrSinkClosed)

	_, err = os.Stat(filepath.Join(root, "thermocouple_data.csv"))
	require.NoError(t, err)
}
