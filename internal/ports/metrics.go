package ports

// Metrics records acquisition counters. Names are the constants below.
type Metrics interface {
	IncCounter(name, sensor string, v float64)
	SetGauge(name, sensor string, v float64)
	ObserveLatency(name string, seconds float64)
}

const (
	MetricSamplesCaptured  = "captureflow_samples_captured_total"
	MetricSamplesDropped   = "captureflow_samples_dropped_total"
	MetricPipelineFailures = "captureflow_pipeline_failures_total"
	MetricSensorUp         = "captureflow_sensor_up"
	MetricQueueLength      = "captureflow_queue_length"
	MetricSinkLatency      = "captureflow_sink_write_latency_seconds"
)

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) IncCounter(string, string, float64) {}
func (NopMetrics) SetGauge(string, string, float64)   {}
func (NopMetrics) ObserveLatency(string, float64)     {}
