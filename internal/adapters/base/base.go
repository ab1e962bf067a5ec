// Package base holds the bookkeeping every sensor adapter shares: identity,
// throughput counters, the decorated record stream and idempotent shutdown.
package base

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// Options are the cross-cutting hooks the runtime hands to every adapter.
type Options struct {
	Metrics  ports.Metrics
	Decorate []ports.SinkDecorator
}

type Base struct {
	name     string
	kind     domain.SensorKind
	opts     Options
	Counters pipeline.Counters
	Logger   zerolog.Logger

	mu          sync.Mutex
	initialized bool
	closers     []func() error
	once        sync.Once
}

func New(name string, kind domain.SensorKind, opts Options) *Base {
	if name == "" {
		name = string(kind)
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}
	return &Base{
		name:   name,
		kind:   kind,
		opts:   opts,
		Logger: xlog.WithSensor(name, kind),
	}
}

func (b *Base) Name() string            { return b.name }
func (b *Base) Kind() domain.SensorKind { return b.kind }
func (b *Base) Metrics() ports.Metrics  { return b.opts.Metrics }

func (b *Base) Stats() ports.SensorStats { return b.Counters.Snapshot() }

// BeginInit guards the at-most-once Initialize contract.
func (b *Base) BeginInit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return domain.NewSensorError(b.name, domain.ErrInitialization, errors.New("already initialized"))
	}
	b.initialized = true
	return nil
}

// OpenCSV opens the sensor's record stream under root, instrumented and
// decorated, and registers it for closing at shutdown.
func (b *Base) OpenCSV(root, file string, cfg sink.CSVConfig) (ports.RecordSink, error) {
	cfg.Path = filepath.Join(root, file)
	s, err := sink.NewCSVSink(b.name, cfg)
	if err != nil {
		return nil, err
	}
	out := b.Decorate(s)
	b.OnShutdown(out.Close)
	return out, nil
}

// Decorate applies metrics and the runtime's decorators to s.
func (b *Base) Decorate(s ports.RecordSink) ports.RecordSink {
	out := sink.Instrument(s, b.opts.Metrics)
	for _, d := range b.opts.Decorate {
		out = d(out)
	}
	return out
}

// OnShutdown registers a release step. Steps run in reverse order.
func (b *Base) OnShutdown(fn func() error) {
	b.mu.Lock()
	b.closers = append(b.closers, fn)
	b.mu.Unlock()
}

// Shutdown runs the registered release steps once. Only the call that ran
// them reports their failure; later calls return nil.
func (b *Base) Shutdown() error {
	var shutdownErr error
	b.once.Do(func() {
		b.mu.Lock()
		closers := b.closers
		b.closers = nil
		b.mu.Unlock()

		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			shutdownErr = domain.NewSensorError(b.name, domain.ErrShutdown, err)
			b.Logger.Warn().Err(err).Str(xlog.FieldEvent, "sensor.shutdown_failed").Msg("shutdown incomplete")
		}
	})
	return shutdownErr
}

// InitError wraps err as an initialization failure of this sensor.
func (b *Base) InitError(err error) error {
	return domain.NewSensorError(b.name, domain.ErrInitialization, err)
}

// NotInitialized is returned by Run before a successful Initialize.
func (b *Base) NotInitialized() error {
	return domain.StreamingError(b.name, errors.New("not initialized"))
}
