package sink

import (
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// TapFunc observes a record after it has been written to its stream.
type TapFunc func(s *domain.CaptureSample)

type tapped struct {
	ports.RecordSink
	fn TapFunc
}

// Tap wraps a record sink so fn sees every successfully written record.
func Tap(s ports.RecordSink, fn TapFunc) ports.RecordSink {
	if fn == nil {
		return s
	}
	return &tapped{RecordSink: s, fn: fn}
}

func (t *tapped) Write(s *domain.CaptureSample) error {
	if err := t.RecordSink.Write(s); err != nil {
		return err
	}
	t.fn(s)
	return nil
}
