package ports

import "github.com/ghalamif/CaptureFlow/internal/domain"

// RecordSink is the append-only per-sensor record stream. Close flushes.
type RecordSink interface {
	Name() string
	Write(s *domain.CaptureSample) error
	Flush() error
	Close() error
}

// BatchSink persists samples in batches to a secondary store.
type BatchSink interface {
	Name() string
	WriteBatch(samples []*domain.CaptureSample) error
}

// SinkDecorator wraps a sensor's record stream, e.g. with metrics or taps.
type SinkDecorator func(RecordSink) RecordSink
