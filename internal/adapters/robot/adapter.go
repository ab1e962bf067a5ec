// Package robot captures the robot controller's cyclic state, either from
// RSI datagrams or from OPC UA variables.
package robot

import (
	"context"
	"strconv"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// FileName is the robot's record stream inside the session directory.
const FileName = "robot_data.csv"

type transport interface {
	columns() []string
	probe(ctx context.Context) bool
	open(ctx context.Context) error
	read(ctx context.Context) (pipeline.Payload, error)
	close() error
}

type Adapter struct {
	*base.Base
	cfg      Config
	tr       transport
	strategy pipeline.Strategy
}

func New(cfg Config, opts base.Options) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{
		Base: base.New(cfg.Name, domain.KindRobot, opts),
		cfg:  cfg,
	}
	switch cfg.Transport {
	case "opcua":
		a.tr = newOPCUATransport(cfg.OPCUA, a.Logger)
	case "sim":
		a.tr = &simTransport{interval: cfg.SimInterval}
	default:
		a.tr = newRSITransport(cfg, a.Logger)
	}
	return a, nil
}

func (a *Adapter) Probe(ctx context.Context) bool {
	return a.tr.probe(ctx)
}

func (a *Adapter) Initialize(ctx context.Context, outputRoot string) error {
	if err := a.BeginInit(); err != nil {
		return err
	}
	if err := a.tr.open(ctx); err != nil {
		return a.InitError(err)
	}
	a.OnShutdown(a.tr.close)

	header := append([]string{"Timestamp", "Elapsed_ms"}, a.tr.columns()...)
	out, err := a.OpenCSV(outputRoot, FileName, sink.CSVConfig{Header: header, Row: row})
	if err != nil {
		return a.InitError(err)
	}

	period := a.cfg.OPCUA.PublishInterval
	if a.cfg.Transport != "opcua" {
		period = 0
	}
	a.strategy = &pipeline.Poll{
		Sensor:      a.Name(),
		Kind:        a.Kind(),
		Period:      period,
		Read:        a.tr.read,
		Sink:        out,
		MaxFailures: 1,
		Escalate:    true,
		Progress:    a.cfg.Progress,
		Counters:    &a.Counters,
		Metrics:     a.Metrics(),
		Logger:      &a.Logger,
	}
	return nil
}

// Run listens until the token is set. A broken transport raises the shared
// token so the other sensors stop with it.
func (a *Adapter) Run(tok *domain.CancelToken) error {
	if a.strategy == nil {
		return a.NotInitialized()
	}
	return a.strategy.Run(tok)
}

func row(s *domain.CaptureSample) []string {
	out := make([]string, 0, 2+len(s.Values))
	out = append(out, sink.FormatWall(s), strconv.FormatFloat(float64(s.Relative.Microseconds())/1000, 'f', 3, 64))
	for _, v := range s.Values {
		out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return out
}

var (
	_ ports.Adapter       = (*Adapter)(nil)
	_ ports.StatsReporter = (*Adapter)(nil)
)
