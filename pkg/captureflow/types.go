package captureflow

import (
	"github.com/ghalamif/CaptureFlow/internal/app/orchestrator"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// Adapter is the capability every sensor exposes to the controller. Custom
// instruments implement it and are added with WithAdapter.
type Adapter = ports.Adapter

// CancelToken is the run-wide stop signal handed to Adapter.Run.
type CancelToken = domain.CancelToken

// SensorKind names the family a sensor belongs to.
type SensorKind = domain.SensorKind

// SensorHandle is the probe/initialize outcome of one sensor.
type SensorHandle = domain.SensorHandle

// RunSession describes one collection run and its output directory.
type RunSession = domain.RunSession

// SensorInfo is the per-sensor outcome recorded in the session manifest.
type SensorInfo = domain.SensorInfo

// SensorStats is what StatsReporter implementations return.
type SensorStats = ports.SensorStats

// Metrics receives acquisition counters; the default is Prometheus.
type Metrics = ports.Metrics

// Catalog keeps a durable index of runs.
type Catalog = ports.Catalog

// Reporter receives operator-facing progress.
type Reporter = orchestrator.Reporter

// StatusReport is the periodic liveness view while collecting.
type StatusReport = orchestrator.StatusReport

// Frame is a raw image buffer.
type Frame = domain.Frame

const (
	KindRobot          = domain.KindRobot
	KindThermocouple   = domain.KindThermocouple
	KindMicrophone     = domain.KindMicrophone
	KindThermalCamera  = domain.KindThermalCamera
	KindExternalDevice = domain.KindExternalDevice
	KindPush           = domain.KindPush
)

var (
	ErrNoSensors       = domain.ErrNoSensors
	ErrSessionFinished = domain.ErrSessionFinished
	ErrInitialization  = domain.ErrInitialization
	ErrStreaming       = domain.ErrStreaming
	ErrShutdown        = domain.ErrShutdown
	ErrOperatorStop    = domain.ErrOperatorStop
)

// NewConsoleReporter prints the check-mark summary to w.
var NewConsoleReporter = orchestrator.NewConsoleReporter
