package pipeline

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// Strategy is one timing shape for moving captures from a driver to a record
// sink. Run blocks until the token is set or the sensor stops itself, and
// returns only after everything already captured has been written.
type Strategy interface {
	Run(tok *domain.CancelToken) error
}

// Payload is what a driver returns for one capture.
type Payload struct {
	Values []float64
	Frame  *domain.Frame
}

// ErrNoSample tells a strategy the driver had nothing this iteration. It is
// neither a sample nor a failure.
var ErrNoSample = errors.New("pipeline: no sample")

type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Fatal marks a driver error as unrecoverable: the sensor stops at once
// instead of counting towards sustained failures.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

// Counters is the lock-free throughput record shared between a pipeline and
// the status reporter.
type Counters struct {
	samples atomic.Uint64
	dropped atomic.Uint64
	last    atomic.Int64
}

func (c *Counters) addSample(at time.Time) {
	c.samples.Add(1)
	c.last.Store(at.UnixNano())
}

func (c *Counters) addDropped(n uint64) {
	c.dropped.Add(n)
}

// Snapshot returns the current counts.
func (c *Counters) Snapshot() ports.SensorStats {
	st := ports.SensorStats{
		Samples: c.samples.Load(),
		Dropped: c.dropped.Load(),
	}
	if ns := c.last.Load(); ns != 0 {
		st.LastSample = time.Unix(0, ns)
	}
	return st
}

func metricsOrNop(m ports.Metrics) ports.Metrics {
	if m == nil {
		return ports.NopMetrics{}
	}
	return m
}
