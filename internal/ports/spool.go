package ports

import (
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// SpoolRecord is one frame read back from a FrameSpool.
type SpoolRecord struct {
	Seq      uint64
	Captured time.Time
	Frame    domain.Frame
}

// FrameSpool is an append-only framed log of raw image buffers.
type FrameSpool interface {
	Append(s *domain.CaptureSample) error
	Iterate(fn func(rec SpoolRecord) error) error
	Flush() error
	Close() error
	Stats() SpoolStats
}

type SpoolStats struct {
	Records   uint64
	LastSeq   uint64
	SizeBytes int64
}
