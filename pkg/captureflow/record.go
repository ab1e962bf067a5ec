package captureflow

import (
	"sync"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// Record mirrors one written sample but is safe for external callers.
type Record struct {
	Sensor    string
	Kind      SensorKind
	Seq       uint64
	Timestamp time.Time
	Relative  time.Duration
	Values    []float64
	Frame     *Frame
}

// RecordFunc observes records after they reach their sensor's file. It runs
// on the sensor's pipeline goroutine and must return quickly.
type RecordFunc func(Record)

// NewChannelTap exposes records via a channel; it returns the tap, the
// read-only channel, and a close function that the caller should invoke after
// the run. Records are dropped while the channel is full so a slow reader
// never stalls acquisition.
func NewChannelTap(buffer int) (RecordFunc, <-chan Record, func()) {
	if buffer < 0 {
		buffer = 0
	}
	t := &channelTap{ch: make(chan Record, buffer)}
	return t.send, t.ch, t.close
}

type channelTap struct {
	mu     sync.RWMutex
	ch     chan Record
	closed bool
}

func (t *channelTap) send(r Record) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.ch <- r:
	default:
	}
}

func (t *channelTap) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.ch)
	}
}

func tapDecorator(fn RecordFunc) ports.SinkDecorator {
	return func(s ports.RecordSink) ports.RecordSink {
		return sink.Tap(s, func(cs *domain.CaptureSample) {
			fn(recordFromDomain(cs))
		})
	}
}

func recordFromDomain(s *domain.CaptureSample) Record {
	return Record{
		Sensor:    s.Sensor,
		Kind:      s.Kind,
		Seq:       s.Seq,
		Timestamp: s.Wall,
		Relative:  s.Relative,
		Values:    append([]float64(nil), s.Values...),
		Frame:     s.Frame,
	}
}
