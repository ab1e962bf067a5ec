package orchestrator

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// Reporter receives operator-facing progress. Calls come from the controller
// goroutine only.
type Reporter interface {
	ProbeResult(h domain.SensorHandle)
	InitResult(sensor string, err error)
	Status(r StatusReport)
	Completed(s domain.RunSession)
}

type SensorStatus struct {
	Name    string
	Kind    domain.SensorKind
	Running bool
	Samples uint64
	Dropped uint64
}

// StatusReport is the periodic liveness view while collecting.
type StatusReport struct {
	Elapsed time.Duration
	Sensors []SensorStatus
}

// Active counts the pipelines still running.
func (r StatusReport) Active() int {
	n := 0
	for _, s := range r.Sensors {
		if s.Running {
			n++
		}
	}
	return n
}

type NopReporter struct{}

func (NopReporter) ProbeResult(domain.SensorHandle) {}
func (NopReporter) InitResult(string, error)        {}
func (NopReporter) Status(StatusReport)             {}
func (NopReporter) Completed(domain.RunSession)     {}

// ConsoleReporter prints the check-mark style summary operators read at the
// bench.
type ConsoleReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (r *ConsoleReporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func (r *ConsoleReporter) ProbeResult(h domain.SensorHandle) {
	if h.Available {
		r.printf("✓ %s (%s) detected\n", h.Name, h.Kind)
		return
	}
	r.printf("✗ %s (%s) not detected\n", h.Name, h.Kind)
}

func (r *ConsoleReporter) InitResult(sensor string, err error) {
	if err != nil {
		r.printf("✗ %s initialization failed: %v\n", sensor, err)
		return
	}
	r.printf("✓ %s initialized\n", sensor)
}

func (r *ConsoleReporter) Status(rep StatusReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "Status: data collection active (%s, %d/%d pipelines running)\n",
		rep.Elapsed.Truncate(time.Second), rep.Active(), len(rep.Sensors))
	for _, s := range rep.Sensors {
		state := "running"
		if !s.Running {
			state = "stopped"
		}
		fmt.Fprintf(r.w, "  - %s: %s, %d samples", s.Name, state, s.Samples)
		if s.Dropped > 0 {
			fmt.Fprintf(r.w, ", %d dropped", s.Dropped)
		}
		fmt.Fprintln(r.w)
	}
}

func (r *ConsoleReporter) Completed(s domain.RunSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, "Data collection complete.")
	for _, info := range s.Sensors {
		if !info.Ready {
			continue
		}
		mark := "✓"
		if info.Error != "" {
			mark = "✗"
		}
		fmt.Fprintf(r.w, "  %s %s: %d samples", mark, info.Name, info.Samples)
		if info.Error != "" {
			fmt.Fprintf(r.w, " (%s)", info.Error)
		}
		fmt.Fprintln(r.w)
	}
	if s.OutputRoot != "" {
		fmt.Fprintf(r.w, "Output saved to: %s\n", s.OutputRoot)
	}
}
