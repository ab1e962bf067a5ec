// Package thermocouple polls a multi-channel temperature DAQ at a fixed rate.
package thermocouple

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// FileName is the thermocouple record stream inside the session directory.
const FileName = "thermocouple_data.csv"

type Config struct {
	Enabled     bool    `yaml:"enabled"`
	Name        string  `yaml:"name"`
	Driver      string  `yaml:"driver"` // "sim"
	Device      string  `yaml:"device"`
	Channels    int     `yaml:"channels"`
	SampleRate  float64 `yaml:"sample_rate"`
	MaxFailures int     `yaml:"max_failures"`
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "thermocouple"
	}
	if c.Driver == "" {
		c.Driver = "sim"
	}
	if c.Device == "" {
		c.Device = "cDAQ1Mod1"
	}
	if c.Channels <= 0 {
		c.Channels = 4
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 3.5
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 10
	}
}

func (c *Config) Validate() error {
	if c.Driver != "sim" {
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.SampleRate > 1000 {
		return errors.New("sample_rate above 1 kHz is not a poll workload")
	}
	return nil
}

// Period is the poll interval derived from the sample rate.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.SampleRate)
}

// DAQ is the driver boundary: one read returns one value per channel in °C.
type DAQ interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) ([]float64, error)
	Close() error
}

type Adapter struct {
	*base.Base
	cfg      Config
	daq      DAQ
	strategy pipeline.Strategy
}

func New(cfg Config, opts base.Options) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithDAQ(cfg, NewSimDAQ(cfg.Channels), opts), nil
}

// NewWithDAQ builds an adapter around a caller-supplied driver.
func NewWithDAQ(cfg Config, daq DAQ, opts base.Options) *Adapter {
	cfg.ApplyDefaults()
	return &Adapter{
		Base: base.New(cfg.Name, domain.KindThermocouple, opts),
		cfg:  cfg,
		daq:  daq,
	}
}

// Probe opens and closes the DAQ task.
func (a *Adapter) Probe(ctx context.Context) bool {
	if err := a.daq.Open(ctx); err != nil {
		a.Logger.Debug().Err(err).Str("device", a.cfg.Device).Msg("daq probe failed")
		return false
	}
	_ = a.daq.Close()
	return true
}

func (a *Adapter) Initialize(ctx context.Context, outputRoot string) error {
	if err := a.BeginInit(); err != nil {
		return err
	}
	if err := a.daq.Open(ctx); err != nil {
		return a.InitError(err)
	}
	a.OnShutdown(a.daq.Close)

	header := []string{"Timestamp", "Relative Time (s)"}
	for i := 0; i < a.cfg.Channels; i++ {
		header = append(header, fmt.Sprintf("Channel %d (°C)", i))
	}
	out, err := a.OpenCSV(outputRoot, FileName, sink.CSVConfig{Header: header, Row: sink.DefaultRow(2)})
	if err != nil {
		return a.InitError(err)
	}

	a.strategy = &pipeline.Poll{
		Sensor: a.Name(),
		Kind:   a.Kind(),
		Period: a.cfg.Period(),
		Read: func(ctx context.Context) (pipeline.Payload, error) {
			temps, err := a.daq.Read(ctx)
			return pipeline.Payload{Values: temps}, err
		},
		Sink:        out,
		MaxFailures: a.cfg.MaxFailures,
		Counters:    &a.Counters,
		Metrics:     a.Metrics(),
		Logger:      &a.Logger,
	}
	return nil
}

// Run polls until the token is set. Sustained read failures stop this
// sensor only.
func (a *Adapter) Run(tok *domain.CancelToken) error {
	if a.strategy == nil {
		return a.NotInitialized()
	}
	return a.strategy.Run(tok)
}

// SimDAQ is a bench driver producing slowly drifting room temperatures.
type SimDAQ struct {
	channels int

	mu    sync.Mutex
	open  bool
	start time.Time
}

func NewSimDAQ(channels int) *SimDAQ {
	return &SimDAQ{channels: channels}
}

func (d *SimDAQ) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	d.start = time.Now()
	return nil
}

func (d *SimDAQ) Read(context.Context) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, errors.New("daq task not open")
	}
	t := time.Since(d.start).Seconds()
	out := make([]float64, d.channels)
	for i := range out {
		out[i] = 22 + float64(i)*0.5 + 0.3*math.Sin(t/7+float64(i))
	}
	return out, nil
}

func (d *SimDAQ) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

var (
	_ ports.Adapter       = (*Adapter)(nil)
	_ ports.StatsReporter = (*Adapter)(nil)
)
