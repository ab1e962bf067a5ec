package ports

import (
	"context"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// Adapter is the uniform capability every sensor driver exposes to the
// orchestrator. Adapters are independent failure domains.
type Adapter interface {
	Name() string
	Kind() domain.SensorKind

	// Probe is a minimally invasive connectivity check. It returns false on
	// unreachable or ambiguous hardware and never blocks past ctx.
	Probe(ctx context.Context) bool

	// Initialize performs one-time hardware setup and opens the sensor's
	// record stream under outputRoot. Called at most once per session.
	Initialize(ctx context.Context, outputRoot string) error

	// Run blocks on its own goroutine until tok is set or the sensor stops
	// itself. It returns promptly after tok is set, after draining anything
	// already captured. Unrecoverable transport failures call tok.Set.
	Run(tok *domain.CancelToken) error

	// Shutdown releases hardware and flushes the record stream. It is safe to
	// call twice and after a partial Initialize.
	Shutdown() error
}

// SensorStats is a point-in-time view of one pipeline's throughput.
type SensorStats struct {
	Samples    uint64
	Dropped    uint64
	LastSample time.Time
}

// StatsReporter is implemented by adapters that count what they capture.
type StatsReporter interface {
	Stats() SensorStats
}
