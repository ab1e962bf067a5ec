package domain

import "time"

// SensorKind names the family a sensor belongs to.
type SensorKind string

const (
	KindRobot          SensorKind = "robot"
	KindThermocouple   SensorKind = "thermocouple"
	KindMicrophone     SensorKind = "microphone"
	KindThermalCamera  SensorKind = "thermal_camera"
	KindExternalDevice SensorKind = "external_box"
	KindPush           SensorKind = "push"
)

// SensorHandle tracks what the controller knows about one sensor. Only the
// orchestrator mutates it.
type SensorHandle struct {
	Name      string     `json:"name"`
	Kind      SensorKind `json:"kind"`
	Available bool       `json:"available"`
	Ready     bool       `json:"ready"`
}

// Active reports whether a pipeline should be started for the sensor.
func (h SensorHandle) Active() bool {
	return h.Available && h.Ready
}

// CaptureSample is the canonical unit produced by every pipeline. It is
// immutable once handed to a sink.
type CaptureSample struct {
	Sensor string     `json:"sensor"`
	Kind   SensorKind `json:"kind"`
	Seq    uint64     `json:"seq"`

	// Captured carries the monotonic reading of the host clock at capture time.
	Captured time.Time `json:"-"`
	// Wall is Captured stripped of its monotonic reading, for human-readable output.
	Wall time.Time `json:"ts"`
	// Relative is the offset from the first sample of the same sensor.
	Relative time.Duration `json:"relative_ns"`

	Values []float64 `json:"values,omitempty"`
	Frame  *Frame    `json:"-"`
}

// Frame is a raw image buffer as delivered by an imaging driver.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

// NewCaptureSample stamps a sample with both clocks from a single reading.
func NewCaptureSample(sensor string, kind SensorKind, seq uint64, captured time.Time) *CaptureSample {
	return &CaptureSample{
		Sensor:   sensor,
		Kind:     kind,
		Seq:      seq,
		Captured: captured,
		Wall:     captured.Round(0),
	}
}
