package microphone

import (
	"errors"
	"math"
	"sync"
	"time"
)

// SimDevice is a bench driver exposing one input that plays a 440 Hz tone.
type SimDevice struct{}

func (SimDevice) Lookup(pattern string) (string, error) {
	return "Sim USB Audio " + pattern, nil
}

func (SimDevice) Open(_ string, rate float64, chunk int) (Stream, error) {
	return &simStream{rate: rate, chunk: chunk}, nil
}

type simStream struct {
	rate  float64
	chunk int

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func (s *simStream) Start(onChunk func([]float64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return errors.New("stream already started")
	}
	s.stopCh = make(chan struct{})
	interval := time.Duration(float64(s.chunk) / s.rate * float64(time.Second))

	s.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var n int
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				buf := make([]float64, s.chunk)
				for i := range buf {
					buf[i] = 0.2 * math.Sin(2*math.Pi*440*float64(n)/s.rate)
					n++
				}
				onChunk(buf)
			}
		}
	}(s.stopCh)
	return nil
}

func (s *simStream) Stop() error {
	s.mu.Lock()
	stop := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	s.wg.Wait()
	return nil
}

func (s *simStream) Close() error {
	return s.Stop()
}
