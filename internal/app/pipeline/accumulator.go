package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// StartFunc starts a callback-driven stream. The driver calls onChunk from
// its own goroutine; after stop returns it must not call onChunk again.
type StartFunc func(onChunk func(samples []float64)) (stop func() error, err error)

// Accumulator buffers chunks delivered by a hardware callback and writes them
// from a supervising loop. Per-sample instants are reconstructed with
// InterpolateChunk. The callback refuses chunks that would push the accepted
// count past elapsed*Rate plus Slack, which bounds memory if the device runs
// faster than real time.
type Accumulator struct {
	Sensor string
	Kind   domain.SensorKind
	Rate   float64
	// Slack is the headroom over the expected count. Zero means one second.
	Slack time.Duration
	// Tick is the supervising interval. Zero means 100ms.
	Tick time.Duration

	Start StartFunc
	Sink  ports.RecordSink

	Counters *Counters
	Metrics  ports.Metrics
	Logger   *zerolog.Logger

	mu       sync.Mutex
	pending  []chunk
	accepted uint64
	expected uint64
	closed   bool
	warn     *rate.Sometimes
	logger   zerolog.Logger
	metrics  ports.Metrics
}

type chunk struct {
	arrival time.Time
	samples []float64
}

func (a *Accumulator) Run(tok *domain.CancelToken) error {
	a.logger = xlog.WithSensor(a.Sensor, a.Kind)
	if a.Logger != nil {
		a.logger = *a.Logger
	}
	if a.Counters == nil {
		a.Counters = &Counters{}
	}
	a.metrics = metricsOrNop(a.Metrics)
	a.warn = &rate.Sometimes{First: 1, Interval: 2 * time.Second}
	tick := a.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	if a.Rate <= 0 {
		return domain.StreamingError(a.Sensor, fmt.Errorf("sample rate must be > 0"))
	}

	clock := NewSessionClock(a.Sensor, a.Kind)
	started := time.Now()

	stop, err := a.Start(a.onChunk)
	if err != nil {
		return domain.StreamingError(a.Sensor, fmt.Errorf("start stream: %w", err))
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var writeErr error
	for {
		select {
		case <-tok.Done():
			stopErr := stop()
			a.mu.Lock()
			a.closed = true
			a.mu.Unlock()
			if err := a.drain(clock); err != nil && writeErr == nil {
				writeErr = err
			}
			if stopErr != nil {
				a.logger.Warn().Err(stopErr).Str(xlog.FieldEvent, "stream.stop_failed").Msg("stopping stream failed")
			}
			return writeErr
		case <-ticker.C:
			a.recompute(time.Since(started))
			if err := a.drain(clock); err != nil && writeErr == nil {
				writeErr = err
			}
		}
	}
}

func (a *Accumulator) recompute(elapsed time.Duration) {
	expected := uint64(elapsed.Seconds() * a.Rate)
	a.mu.Lock()
	a.expected = expected
	a.mu.Unlock()
}

func (a *Accumulator) onChunk(samples []float64) {
	if len(samples) == 0 {
		return
	}
	arrival := time.Now()
	slack := a.Slack
	if slack <= 0 {
		slack = time.Second
	}
	limit := uint64(slack.Seconds() * a.Rate)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if a.accepted+uint64(len(samples)) > a.expected+limit {
		over := a.accepted + uint64(len(samples)) - a.expected
		a.mu.Unlock()
		a.Counters.addDropped(uint64(len(samples)))
		a.metrics.IncCounter(ports.MetricSamplesDropped, a.Sensor, float64(len(samples)))
		a.warn.Do(func() {
			a.logger.Warn().
				Str(xlog.FieldEvent, "audio.samples_dropped").
				Int("chunk", len(samples)).
				Uint64("ahead_by", over).
				Msg("callback running ahead of real time, dropping chunk")
		})
		return
	}
	a.pending = append(a.pending, chunk{arrival: arrival, samples: append([]float64(nil), samples...)})
	a.accepted += uint64(len(samples))
	a.mu.Unlock()
}

func (a *Accumulator) drain(clock *SessionClock) error {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	var firstErr error
	for _, c := range pending {
		stamps := InterpolateChunk(c.arrival, len(c.samples), a.Rate)
		for i, v := range c.samples {
			s := clock.Stamp(stamps[i], Payload{Values: []float64{v}})
			if err := a.Sink.Write(s); err != nil {
				if firstErr == nil {
					firstErr = domain.StreamingError(a.Sensor, err)
					a.logger.Error().Err(err).Str(xlog.FieldEvent, "sink.write_failed").Msg("persisting audio failed")
				}
				a.Counters.addDropped(1)
				continue
			}
			a.Counters.addSample(stamps[i])
		}
	}
	return firstErr
}
