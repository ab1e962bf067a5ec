package domain

import (
	"sort"
	"time"
)

// RunState is one of the orchestrator lifecycle states.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateProbed     RunState = "probed"
	StatePrepared   RunState = "prepared"
	StateCollecting RunState = "collecting"
	StateStopping   RunState = "stopping"
	StateStopped    RunState = "stopped"
)

// RunSession describes exactly one collection run tied to one output location.
type RunSession struct {
	ID            string       `json:"id"`
	OutputRoot    string       `json:"output_root"`
	CreatedAt     time.Time    `json:"created_at"`
	FinishedAt    time.Time    `json:"finished_at,omitempty"`
	ActiveSensors []string     `json:"active_sensors"`
	State         RunState     `json:"state"`
	Sensors       []SensorInfo `json:"sensors"`
}

// SensorInfo is the per-sensor outcome recorded in the session manifest.
type SensorInfo struct {
	Name      string     `json:"name"`
	Kind      SensorKind `json:"kind"`
	Available bool       `json:"available"`
	Ready     bool       `json:"ready"`
	Samples   uint64     `json:"samples"`
	Dropped   uint64     `json:"dropped"`
	Error     string     `json:"error,omitempty"`
}

// SetActive replaces the active sensor set, keeping it sorted for stable output.
func (s *RunSession) SetActive(names []string) {
	out := append([]string(nil), names...)
	sort.Strings(out)
	s.ActiveSensors = out
}
