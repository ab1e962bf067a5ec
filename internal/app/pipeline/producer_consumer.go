package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// ProducerConsumer decouples a fast capture loop from persistence through a
// bounded queue. Under the "block" policy a full queue never drops a sample:
// the producer retries every IdleSleep until the consumer makes room. After
// the producer stops the consumer drains the queue completely.
type ProducerConsumer struct {
	Sensor string
	Kind   domain.SensorKind

	Capture func(ctx context.Context) (Payload, error)
	Queue   ports.SampleQueue
	Policy  ports.QueuePolicy
	Sink    ports.RecordSink

	MaxFailures int
	Escalate    bool

	Counters *Counters
	Metrics  ports.Metrics
	Logger   *zerolog.Logger

	latestMu sync.Mutex
	latest   *domain.CaptureSample
}

// Latest returns the most recent capture for live preview, or nil.
func (pc *ProducerConsumer) Latest() *domain.CaptureSample {
	pc.latestMu.Lock()
	defer pc.latestMu.Unlock()
	return pc.latest
}

func (pc *ProducerConsumer) setLatest(s *domain.CaptureSample) {
	pc.latestMu.Lock()
	pc.latest = s
	pc.latestMu.Unlock()
}

func (pc *ProducerConsumer) Run(tok *domain.CancelToken) error {
	logger := xlog.WithSensor(pc.Sensor, pc.Kind)
	if pc.Logger != nil {
		logger = *pc.Logger
	}
	if pc.Counters == nil {
		pc.Counters = &Counters{}
	}
	pol := pc.Policy
	if pol.IdleSleep <= 0 {
		pol.IdleSleep = 5 * time.Millisecond
	}
	if pol.MaxBatchSize <= 0 {
		pol.MaxBatchSize = 16
	}
	if pol.OnQueueFull == "" {
		pol.OnQueueFull = "block"
	}
	metrics := metricsOrNop(pc.Metrics)

	var producerDone atomic.Bool
	var g errgroup.Group

	g.Go(func() error {
		defer producerDone.Store(true)
		return pc.produce(tok, pol, metrics, logger)
	})
	g.Go(func() error {
		return pc.consume(&producerDone, pol, metrics, logger)
	})
	return g.Wait()
}

func (pc *ProducerConsumer) produce(tok *domain.CancelToken, pol ports.QueuePolicy, metrics ports.Metrics, logger zerolog.Logger) error {
	maxFailures := pc.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 10
	}
	clock := NewSessionClock(pc.Sensor, pc.Kind)
	ctx := tok.Context()
	failures := 0

	for !tok.IsSet() {
		payload, err := pc.Capture(ctx)
		captured := time.Now()
		switch {
		case err == nil:
			failures = 0
			s := clock.Stamp(captured, payload)
			pc.setLatest(s)
			if !enqueueWithPolicy(pc.Queue, s, pol, logger) {
				pc.Counters.addDropped(1)
				metrics.IncCounter(ports.MetricSamplesDropped, pc.Sensor, 1)
			}
			metrics.SetGauge(ports.MetricQueueLength, pc.Sensor, float64(pc.Queue.Len()))
		case errors.Is(err, ErrNoSample):
		case tok.IsSet() && errors.Is(err, context.Canceled):
			return nil
		default:
			failures++
			metrics.IncCounter(ports.MetricPipelineFailures, pc.Sensor, 1)
			logger.Warn().Err(err).
				Str(xlog.FieldEvent, "sensor.capture_failed").
				Int("consecutive", failures).
				Msg("capture failed")
			if IsFatal(err) || failures >= maxFailures {
				serr := domain.StreamingError(pc.Sensor, fmt.Errorf("producer stopped: %w", err))
				if pc.Escalate {
					tok.Set(serr)
				}
				return serr
			}
		}
	}
	return nil
}

func (pc *ProducerConsumer) consume(producerDone *atomic.Bool, pol ports.QueuePolicy, metrics ports.Metrics, logger zerolog.Logger) error {
	var writeErr error
	for {
		// Read the flag before dequeuing: an empty queue observed after the
		// producer finished is final.
		done := producerDone.Load()
		batch := pc.Queue.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			if done {
				metrics.SetGauge(ports.MetricQueueLength, pc.Sensor, 0)
				return writeErr
			}
			time.Sleep(pol.IdleSleep)
			continue
		}

		for _, s := range batch {
			if err := pc.Sink.Write(s); err != nil {
				if writeErr == nil {
					logger.Error().Err(err).
						Str(xlog.FieldEvent, "sink.write_failed").
						Uint64("seq", s.Seq).
						Msg("persisting capture failed")
					writeErr = domain.StreamingError(pc.Sensor, err)
				}
				pc.Counters.addDropped(1)
				continue
			}
			pc.Counters.addSample(s.Captured)
		}
	}
}

// enqueueWithPolicy hands s to the queue. "block" retries until the consumer
// frees a slot; "drop" gives up at once.
func enqueueWithPolicy(q ports.SampleQueue, s *domain.CaptureSample, pol ports.QueuePolicy, logger zerolog.Logger) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	warned := false
	for {
		if ok := q.Enqueue(s); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			if !warned {
				warned = true
				logger.Debug().
					Str(xlog.FieldEvent, "queue.full").
					Int("capacity", q.Cap()).
					Msg("queue at capacity, waiting for consumer")
			}
			time.Sleep(sleep)
		case "drop":
			logger.Warn().
				Str(xlog.FieldEvent, "queue.full_drop").
				Int("capacity", q.Cap()).
				Uint64("seq", s.Seq).
				Msg("queue full, sample dropped")
			return false
		default:
			logger.Error().
				Str(xlog.FieldEvent, "queue.policy_invalid").
				Str("policy", pol.OnQueueFull).
				Msg("unknown queue policy")
			return false
		}
	}
}
