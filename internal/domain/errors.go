package domain

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every sensor-local failure is wrapped in a SensorError whose
// Phase is one of these sentinels.
var (
	ErrProbe              = errors.New("probe failure")
	ErrInitialization     = errors.New("initialization failure")
	ErrStreaming          = errors.New("streaming failure")
	ErrShutdown           = errors.New("shutdown failure")
	ErrResourceExhaustion = errors.New("resource exhaustion")

	ErrNoSensors       = errors.New("no sensors detected")
	ErrSessionFinished = errors.New("session already finished")
	ErrInvalidState    = errors.New("invalid lifecycle state")
	ErrOperatorStop    = errors.New("operator requested stop")
)

// SensorError attributes a failure to one sensor and one lifecycle phase.
type SensorError struct {
	Sensor string
	Phase  error
	Err    error
}

func (e *SensorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Sensor, e.Phase)
	}
	return fmt.Sprintf("%s: %v: %v", e.Sensor, e.Phase, e.Err)
}

// Unwrap exposes both the phase sentinel and the cause to errors.Is/As.
func (e *SensorError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Phase}
	}
	return []error{e.Phase, e.Err}
}

func NewSensorError(sensor string, phase, err error) *SensorError {
	return &SensorError{Sensor: sensor, Phase: phase, Err: err}
}

// StreamingError is shorthand for a mid-run failure.
func StreamingError(sensor string, err error) error {
	return NewSensorError(sensor, ErrStreaming, err)
}
