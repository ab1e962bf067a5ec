package robot

import (
	"context"
	"math"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
)

// simTransport produces a slow circular weld path for bench runs without a
// controller.
type simTransport struct {
	interval time.Duration
	ipoc     float64
	start    time.Time
}

func (t *simTransport) columns() []string          { return rsiColumns }
func (t *simTransport) probe(context.Context) bool { return true }

func (t *simTransport) open(context.Context) error {
	t.start = time.Now()
	return nil
}

func (t *simTransport) read(ctx context.Context) (pipeline.Payload, error) {
	select {
	case <-ctx.Done():
		return pipeline.Payload{}, ctx.Err()
	case <-time.After(t.interval):
	}
	t.ipoc += 4
	phase := time.Since(t.start).Seconds() / 10 * 2 * math.Pi
	values := make([]float64, len(rsiColumns))
	values[0] = 500 + 50*math.Cos(phase)
	values[1] = 50 * math.Sin(phase)
	values[2] = 300
	copy(values[6:9], values[0:3])
	values[13] = 24.5 // WeldVolt
	values[14] = 180  // WeldAmps
	values[16] = 8.5  // WFS
	values[17] = t.ipoc
	return pipeline.Payload{Values: values}, nil
}

func (t *simTransport) close() error { return nil }
