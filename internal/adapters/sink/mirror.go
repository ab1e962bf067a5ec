package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// MirrorQueue is how many full batches may wait for the secondary store.
// Batches beyond it are dropped and counted in Failed.
const MirrorQueue = 4

// Mirror writes every record to the primary stream and batches a copy to a
// secondary store. Batches are shipped from their own goroutine, so a slow
// or failing secondary never holds up the pipeline and the primary file
// stays the source of truth.
type Mirror struct {
	ports.RecordSink
	secondary ports.BatchSink
	size      int
	logger    zerolog.Logger
	warn      *rate.Sometimes

	mu      sync.Mutex
	pending []*domain.CaptureSample
	closed  bool

	batches chan []*domain.CaptureSample
	done    chan struct{}
	failed  atomic.Uint64
}

func NewMirror(primary ports.RecordSink, secondary ports.BatchSink, batchSize int) *Mirror {
	if batchSize <= 0 {
		batchSize = 500
	}
	m := &Mirror{
		RecordSink: primary,
		secondary:  secondary,
		size:       batchSize,
		logger:     xlog.WithComponent("mirror").With().Str(xlog.FieldSensor, primary.Name()).Logger(),
		warn:       &rate.Sometimes{First: 1, Interval: 5 * time.Second},
		pending:    make([]*domain.CaptureSample, 0, batchSize),
		batches:    make(chan []*domain.CaptureSample, MirrorQueue),
		done:       make(chan struct{}),
	}
	go m.ship()
	return m
}

func (m *Mirror) Write(s *domain.CaptureSample) error {
	if err := m.RecordSink.Write(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.pending = append(m.pending, s)
	if len(m.pending) >= m.size {
		m.enqueueLocked()
	}
	return nil
}

// Flush hands the partial batch to the shipper without waiting for it.
func (m *Mirror) Flush() error {
	m.mu.Lock()
	if !m.closed {
		m.enqueueLocked()
	}
	m.mu.Unlock()
	return m.RecordSink.Flush()
}

// Close ships what is pending, waits for the shipper to drain and then
// closes the primary stream.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if !m.closed {
		m.enqueueLocked()
		m.closed = true
		close(m.batches)
	}
	m.mu.Unlock()
	<-m.done
	return m.RecordSink.Close()
}

// Failed reports how many records never reached the secondary store.
func (m *Mirror) Failed() uint64 {
	return m.failed.Load()
}

func (m *Mirror) enqueueLocked() {
	if len(m.pending) == 0 {
		return
	}
	batch := m.pending
	m.pending = make([]*domain.CaptureSample, 0, m.size)
	select {
	case m.batches <- batch:
	default:
		m.failed.Add(uint64(len(batch)))
		m.warn.Do(func() {
			m.logger.Warn().
				Str(xlog.FieldEvent, "mirror.queue_full").
				Str("target", m.secondary.Name()).
				Uint64("failed_total", m.failed.Load()).
				Msg("secondary store is behind; dropping mirror batch")
		})
	}
}

func (m *Mirror) ship() {
	defer close(m.done)
	for batch := range m.batches {
		if err := m.secondary.WriteBatch(batch); err != nil {
			m.failed.Add(uint64(len(batch)))
			m.logger.Warn().Err(err).
				Str(xlog.FieldEvent, "mirror.write_failed").
				Str("target", m.secondary.Name()).
				Int("records", len(batch)).
				Msg("secondary write failed")
		}
	}
}
