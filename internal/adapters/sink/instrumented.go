package sink

import (
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

type instrumented struct {
	ports.RecordSink
	metrics ports.Metrics
}

// Instrument counts written records per sensor and observes write latency.
func Instrument(s ports.RecordSink, m ports.Metrics) ports.RecordSink {
	if m == nil {
		return s
	}
	return &instrumented{RecordSink: s, metrics: m}
}

func (i *instrumented) Write(s *domain.CaptureSample) error {
	start := time.Now()
	err := i.RecordSink.Write(s)
	i.metrics.ObserveLatency(ports.MetricSinkLatency, time.Since(start).Seconds())
	if err == nil {
		i.metrics.IncCounter(ports.MetricSamplesCaptured, s.Sensor, 1)
	}
	return err
}
