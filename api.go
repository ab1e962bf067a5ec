package captureflow

import (
	base "github.com/ghalamif/CaptureFlow/pkg/captureflow"
)

// Re-exported errors for convenience.
var (
	ErrNoSensors       = base.ErrNoSensors
	ErrSessionFinished = base.ErrSessionFinished
	ErrInitialization  = base.ErrInitialization
	ErrStreaming       = base.ErrStreaming
	ErrOperatorStop    = base.ErrOperatorStop
	ErrPushStopped     = base.ErrPushStopped
	ErrPushDetached    = base.ErrPushDetached
)

// Type aliases so consumers can import github.com/ghalamif/CaptureFlow directly.
type (
	Config              = base.Config
	OutputConfig        = base.OutputConfig
	SessionConfig       = base.SessionConfig
	MetricsConfig       = base.MetricsConfig
	CatalogConfig       = base.CatalogConfig
	TimescaleConfig     = base.TimescaleConfig
	RobotConfig         = base.RobotConfig
	ThermocoupleConfig  = base.ThermocoupleConfig
	MicrophoneConfig    = base.MicrophoneConfig
	ThermalCameraConfig = base.ThermalCameraConfig
	ExternalConfig      = base.ExternalConfig
	Flow                = base.Flow
	FlowOption          = base.FlowOption
	StreamInOption      = base.StreamInOption
	StreamOutOption     = base.StreamOutOption
	Runtime             = base.Runtime
	RuntimeOption       = base.RuntimeOption
	Adapter             = base.Adapter
	CancelToken         = base.CancelToken
	SensorKind          = base.SensorKind
	SensorHandle        = base.SensorHandle
	RunSession          = base.RunSession
	Record              = base.Record
	RecordFunc          = base.RecordFunc
	PushSensor          = base.PushSensor
	PushConfig          = base.PushConfig
	Metrics             = base.Metrics
	Reporter            = base.Reporter
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInAdapter(a Adapter) StreamInOption {
	return base.StreamInAdapter(a)
}

func StreamInPush(p *PushSensor) StreamInOption {
	return base.StreamInPush(p)
}

func StreamOutCallback(fn RecordFunc) StreamOutOption {
	return base.StreamOutCallback(fn)
}

func StreamOutMetrics(m Metrics) StreamOutOption {
	return base.StreamOutMetrics(m)
}

func StreamOutReporter(r Reporter) StreamOutOption {
	return base.StreamOutReporter(r)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithAdapter(a Adapter) RuntimeOption {
	return base.WithAdapter(a)
}

func WithPushSensor(p *PushSensor) RuntimeOption {
	return base.WithPushSensor(p)
}

func WithRecordTap(fn RecordFunc) RuntimeOption {
	return base.WithRecordTap(fn)
}

func WithMetrics(m Metrics) RuntimeOption {
	return base.WithMetrics(m)
}

func WithReporter(r Reporter) RuntimeOption {
	return base.WithReporter(r)
}

func WithStopSignal(ch <-chan struct{}) RuntimeOption {
	return base.WithStopSignal(ch)
}

// Push sensors and record taps.
func NewPushSensor(cfg PushConfig) (*PushSensor, error) {
	return base.NewPushSensor(cfg)
}

func NewChannelTap(buffer int) (RecordFunc, <-chan Record, func()) {
	return base.NewChannelTap(buffer)
}
