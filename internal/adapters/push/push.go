// Package push is a sensor adapter fed by the embedding program: each Publish
// call becomes one sample, stamped at the moment it is accepted.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/adapters/queue"
	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// ErrStopped is returned by Publish once the sensor's run has ended.
var ErrStopped = errors.New("push: sensor stopped")

type Config struct {
	Name     string
	Columns  []string
	Decimals int
	Queue    ports.QueuePolicy
	// Probe reports availability. Nil means always available.
	Probe func(ctx context.Context) bool
}

type Adapter struct {
	*base.Base
	cfg Config

	in      chan pipeline.Payload
	stopped chan struct{}
	once    sync.Once
	pc      *pipeline.ProducerConsumer
}

func New(cfg Config, opts base.Options) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, errors.New("push: name is required")
	}
	if cfg.Decimals <= 0 {
		cfg.Decimals = 6
	}
	if cfg.Queue.MaxQueueLen <= 0 {
		cfg.Queue.MaxQueueLen = 1024
	}
	if cfg.Queue.IdleSleep <= 0 {
		cfg.Queue.IdleSleep = time.Millisecond
	}
	if cfg.Queue.OnQueueFull == "" {
		cfg.Queue.OnQueueFull = "block"
	}
	return &Adapter{
		Base:    base.New(cfg.Name, domain.KindPush, opts),
		cfg:     cfg,
		in:      make(chan pipeline.Payload),
		stopped: make(chan struct{}),
	}, nil
}

// FileName is the record stream of this sensor inside the session directory.
func (a *Adapter) FileName() string { return a.Name() + "_data.csv" }

func (a *Adapter) Probe(ctx context.Context) bool {
	if a.cfg.Probe == nil {
		return true
	}
	return a.cfg.Probe(ctx)
}

func (a *Adapter) Initialize(_ context.Context, outputRoot string) error {
	if err := a.BeginInit(); err != nil {
		return err
	}
	header := append([]string{"Timestamp", "Relative Time (s)"}, a.cfg.Columns...)
	out, err := a.OpenCSV(outputRoot, a.FileName(), sink.CSVConfig{Header: header, Row: sink.DefaultRow(a.cfg.Decimals)})
	if err != nil {
		return a.InitError(err)
	}
	a.pc = &pipeline.ProducerConsumer{
		Sensor:   a.Name(),
		Kind:     a.Kind(),
		Capture:  a.next,
		Queue:    queue.NewMemQueue(a.cfg.Queue.MaxQueueLen),
		Policy:   a.cfg.Queue,
		Sink:     out,
		Counters: &a.Counters,
		Metrics:  a.Metrics(),
		Logger:   &a.Logger,
	}
	return nil
}

func (a *Adapter) next(ctx context.Context) (pipeline.Payload, error) {
	select {
	case p := <-a.in:
		return p, nil
	case <-ctx.Done():
		return pipeline.Payload{}, ctx.Err()
	}
}

// Publish hands one set of values to the running sensor. It blocks until the
// sample is accepted, the run ends, or ctx is done. An accepted sample is
// always written.
func (a *Adapter) Publish(ctx context.Context, values []float64) error {
	if len(a.cfg.Columns) > 0 && len(values) != len(a.cfg.Columns) {
		return fmt.Errorf("push %s: got %d values for %d columns", a.Name(), len(values), len(a.cfg.Columns))
	}
	p := pipeline.Payload{Values: append([]float64(nil), values...)}
	select {
	case <-a.stopped:
		return ErrStopped
	default:
	}
	select {
	case a.in <- p:
		return nil
	case <-a.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) Run(tok *domain.CancelToken) error {
	if a.pc == nil {
		return a.NotInitialized()
	}
	defer a.once.Do(func() { close(a.stopped) })
	return a.pc.Run(tok)
}

var (
	_ ports.Adapter       = (*Adapter)(nil)
	_ ports.StatsReporter = (*Adapter)(nil)
)
