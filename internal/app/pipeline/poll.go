package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// Poll reads the driver on a fixed period. With Period zero the driver paces
// itself, e.g. a socket read with a short deadline returning ErrNoSample.
type Poll struct {
	Sensor string
	Kind   domain.SensorKind
	Period time.Duration

	Read func(ctx context.Context) (Payload, error)
	Sink ports.RecordSink

	// MaxFailures is the number of consecutive failures after which the sensor
	// stops itself. Zero means 10.
	MaxFailures int
	// Escalate raises the shared token when the sensor stops on a failure.
	Escalate bool
	// Progress logs the running sample count at this interval when non-zero.
	Progress time.Duration

	Counters *Counters
	Metrics  ports.Metrics
	Logger   *zerolog.Logger
}

func (p *Poll) Run(tok *domain.CancelToken) error {
	logger := xlog.WithSensor(p.Sensor, p.Kind)
	if p.Logger != nil {
		logger = *p.Logger
	}
	if p.Counters == nil {
		p.Counters = &Counters{}
	}
	metrics := metricsOrNop(p.Metrics)
	maxFailures := p.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 10
	}

	clock := NewSessionClock(p.Sensor, p.Kind)
	ctx := tok.Context()

	var tick <-chan time.Time
	if p.Period > 0 {
		ticker := time.NewTicker(p.Period)
		defer ticker.Stop()
		tick = ticker.C
	}
	lastProgress := time.Now()
	failures := 0

	for {
		if tick != nil {
			select {
			case <-tok.Done():
				return nil
			case <-tick:
			}
		} else if tok.IsSet() {
			return nil
		}

		payload, err := p.Read(ctx)
		captured := time.Now()
		if err == nil {
			s := clock.Stamp(captured, payload)
			err = p.Sink.Write(s)
			if err == nil {
				p.Counters.addSample(captured)
				failures = 0
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, ErrNoSample):
		case tok.IsSet() && errors.Is(err, context.Canceled):
			return nil
		default:
			failures++
			metrics.IncCounter(ports.MetricPipelineFailures, p.Sensor, 1)
			logger.Warn().Err(err).
				Str(xlog.FieldEvent, "sensor.read_failed").
				Int("consecutive", failures).
				Msg("read failed")
			if IsFatal(err) || failures >= maxFailures {
				return p.stop(tok, logger, err, failures)
			}
		}

		if p.Progress > 0 && time.Since(lastProgress) >= p.Progress {
			lastProgress = time.Now()
			logger.Info().Uint64("samples", clock.Count()).Msgf("collected %d data points", clock.Count())
		}
	}
}

func (p *Poll) stop(tok *domain.CancelToken, logger zerolog.Logger, cause error, failures int) error {
	if !IsFatal(cause) {
		cause = fmt.Errorf("%d consecutive failures: %w", failures, cause)
	}
	err := domain.StreamingError(p.Sensor, cause)
	logger.Error().Err(cause).
		Str(xlog.FieldEvent, "sensor.self_stop").
		Bool("escalate", p.Escalate).
		Msg("sensor stopped itself")
	if p.Escalate {
		tok.Set(err)
	}
	return err
}
