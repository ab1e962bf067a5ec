package pipeline

import (
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// SessionClock stamps samples of one sensor relative to that sensor's first
// sample. It is owned by a single goroutine.
type SessionClock struct {
	sensor string
	kind   domain.SensorKind
	first  time.Time
	seq    uint64
}

func NewSessionClock(sensor string, kind domain.SensorKind) *SessionClock {
	return &SessionClock{sensor: sensor, kind: kind}
}

// Stamp builds the next sample. captured must come from time.Now (or be
// derived from it) so that it carries a monotonic reading.
func (c *SessionClock) Stamp(captured time.Time, p Payload) *domain.CaptureSample {
	if c.seq == 0 {
		c.first = captured
	}
	c.seq++
	s := domain.NewCaptureSample(c.sensor, c.kind, c.seq, captured)
	s.Relative = captured.Sub(c.first)
	s.Values = p.Values
	s.Frame = p.Frame
	return s
}

// Count is the number of samples stamped so far.
func (c *SessionClock) Count() uint64 { return c.seq }

// InterpolateChunk reconstructs per-sample instants for a chunk of n samples
// that arrived together at arrival, assuming uniform spacing of 1/rate. The
// result spans [arrival, arrival+(n-1)/rate]. It is an approximation of the
// hardware sample clock, not a measurement of it.
func InterpolateChunk(arrival time.Time, n int, rate float64) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	for i := range out {
		out[i] = arrival.Add(sampleOffset(i, rate))
	}
	return out
}

func sampleOffset(i int, rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(i) * float64(time.Second) / rate)
}
