package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// PromMetrics implements ports.Metrics on a dedicated registry so several
// runs in one process never collide on registration.
type PromMetrics struct {
	registry *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	histos   map[string]prometheus.Observer
}

func NewPromMetrics() *PromMetrics {
	captured := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricSamplesCaptured,
		Help: "Samples captured and written to the sensor's record stream.",
	}, []string{"sensor"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricSamplesDropped,
		Help: "Samples refused because the sensor ran ahead of real time.",
	}, []string{"sensor"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricPipelineFailures,
		Help: "Pipelines that stopped on a streaming failure.",
	}, []string{"sensor"})
	up := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ports.MetricSensorUp,
		Help: "1 while the sensor's pipeline is running.",
	}, []string{"sensor"})
	queueLen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ports.MetricQueueLength,
		Help: "Frames buffered between producer and consumer.",
	}, []string{"sensor"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSinkLatency,
		Help:    "Latency of a single record sink write.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(captured, dropped, failures, up, queueLen, latency)

	return &PromMetrics{
		registry: reg,
		counters: map[string]*prometheus.CounterVec{
			ports.MetricSamplesCaptured:  captured,
			ports.MetricSamplesDropped:   dropped,
			ports.MetricPipelineFailures: failures,
		},
		gauges: map[string]*prometheus.GaugeVec{
			ports.MetricSensorUp:    up,
			ports.MetricQueueLength: queueLen,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricSinkLatency: latency,
		},
	}
}

// Registry exposes the gatherer for the HTTP handler.
func (p *PromMetrics) Registry() *prometheus.Registry { return p.registry }

func (p *PromMetrics) IncCounter(name, sensor string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.WithLabelValues(sensor).Add(v)
	}
}

func (p *PromMetrics) SetGauge(name, sensor string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.WithLabelValues(sensor).Set(v)
	}
}

func (p *PromMetrics) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

var _ ports.Metrics = (*PromMetrics)(nil)
