// Package microphone records a USB microphone whose driver delivers audio
// through an asynchronous callback.
package microphone

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// FileName is the microphone record stream inside the session directory.
const FileName = "microphone_data.csv"

type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Name          string        `yaml:"name"`
	Driver        string        `yaml:"driver"` // "sim"
	DevicePattern string        `yaml:"device_pattern"`
	SampleRate    float64       `yaml:"sample_rate"`
	ChunkSize     int           `yaml:"chunk_size"`
	Tick          time.Duration `yaml:"tick"`
	Slack         time.Duration `yaml:"slack"`
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "microphone"
	}
	if c.Driver == "" {
		c.Driver = "sim"
	}
	if c.DevicePattern == "" {
		c.DevicePattern = "485B39"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1024
	}
	if c.Tick <= 0 {
		c.Tick = 100 * time.Millisecond
	}
	if c.Slack <= 0 {
		c.Slack = time.Second
	}
}

func (c *Config) Validate() error {
	if c.Driver != "sim" {
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}

// Device is the audio driver boundary.
type Device interface {
	// Lookup returns the name of the first input device matching pattern.
	Lookup(pattern string) (string, error)
	Open(name string, rate float64, chunk int) (Stream, error)
}

// Stream delivers mono samples to onChunk from the driver's own goroutine
// until Stop returns.
type Stream interface {
	Start(onChunk func(samples []float64)) error
	Stop() error
	Close() error
}

type Adapter struct {
	*base.Base
	cfg    Config
	dev    Device
	stream Stream
	root   string
}

func New(cfg Config, opts base.Options) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithDevice(cfg, SimDevice{}, opts), nil
}

func NewWithDevice(cfg Config, dev Device, opts base.Options) *Adapter {
	cfg.ApplyDefaults()
	return &Adapter{
		Base: base.New(cfg.Name, domain.KindMicrophone, opts),
		cfg:  cfg,
		dev:  dev,
	}
}

// Probe looks for an input device matching the configured name pattern.
func (a *Adapter) Probe(context.Context) bool {
	name, err := a.dev.Lookup(a.cfg.DevicePattern)
	if err != nil {
		a.Logger.Debug().Err(err).Str("pattern", a.cfg.DevicePattern).Msg("microphone not found")
		return false
	}
	a.Logger.Debug().Str("device", name).Msg("microphone found")
	return true
}

func (a *Adapter) Initialize(_ context.Context, outputRoot string) error {
	if err := a.BeginInit(); err != nil {
		return err
	}
	name, err := a.dev.Lookup(a.cfg.DevicePattern)
	if err != nil {
		return a.InitError(err)
	}
	stream, err := a.dev.Open(name, a.cfg.SampleRate, a.cfg.ChunkSize)
	if err != nil {
		return a.InitError(err)
	}
	a.stream = stream
	a.root = outputRoot
	a.OnShutdown(stream.Close)
	return nil
}

// Run opens the record stream when recording starts, so its preamble carries
// the actual start time, then accumulates callback chunks until the token is
// set.
func (a *Adapter) Run(tok *domain.CancelToken) error {
	if a.stream == nil {
		return a.NotInitialized()
	}
	started := time.Now()
	out, err := a.OpenCSV(a.root, FileName, sink.CSVConfig{
		Preamble: []string{"Recording Start Time", started.Format("2006-01-02 15:04:05.000000")},
		Header:   []string{"Relative Time (s)", "Absolute Time", "Amplitude"},
		Row:      row,
	})
	if err != nil {
		return domain.StreamingError(a.Name(), err)
	}

	acc := &pipeline.Accumulator{
		Sensor: a.Name(),
		Kind:   a.Kind(),
		Rate:   a.cfg.SampleRate,
		Slack:  a.cfg.Slack,
		Tick:   a.cfg.Tick,
		Start: func(onChunk func([]float64)) (func() error, error) {
			if err := a.stream.Start(onChunk); err != nil {
				return nil, err
			}
			return a.stream.Stop, nil
		},
		Sink:     out,
		Counters: &a.Counters,
		Metrics:  a.Metrics(),
		Logger:   &a.Logger,
	}
	return acc.Run(tok)
}

func row(s *domain.CaptureSample) []string {
	amp := 0.0
	if len(s.Values) > 0 {
		amp = s.Values[0]
	}
	return []string{
		sink.FormatRelative(s),
		sink.FormatWall(s),
		strconv.FormatFloat(amp, 'f', -1, 64),
	}
}

// ErrNoDevice is returned by Lookup when nothing matches.
var ErrNoDevice = errors.New("microphone: no matching input device")

var (
	_ ports.Adapter       = (*Adapter)(nil)
	_ ports.StatsReporter = (*Adapter)(nil)
)
