package ports

import "github.com/ghalamif/CaptureFlow/internal/domain"

// SampleQueue is the bounded FIFO between a capture producer and its
// persistence consumer.
type SampleQueue interface {
	Enqueue(s *domain.CaptureSample) bool
	DequeueBatch(max int) []*domain.CaptureSample
	Len() int
	Cap() int
}
