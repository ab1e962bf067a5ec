package queue

import (
	"sync"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// MemQueue is a bounded in-memory queue that preserves FIFO ordering.
type MemQueue struct {
	mu   sync.Mutex
	data []*domain.CaptureSample
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data: make([]*domain.CaptureSample, 0, capacity),
		cap:  capacity,
	}
}

// Enqueue never blocks; it reports false when the queue is at capacity.
func (q *MemQueue) Enqueue(s *domain.CaptureSample) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, s)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []*domain.CaptureSample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]*domain.CaptureSample, max)
	copy(out, q.data[:max])
	n := copy(q.data, q.data[max:])
	clear(q.data[n:])
	q.data = q.data[:n]
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

func (q *MemQueue) Cap() int {
	return q.cap
}

var _ ports.SampleQueue = (*MemQueue)(nil)
