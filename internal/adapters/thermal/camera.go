package thermal

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// Camera is the imaging driver boundary.
type Camera interface {
	Detect(ctx context.Context) bool
	// Configure programs the camera for radiometric streaming and reads back
	// its calibration.
	Configure(ctx context.Context) (Calibration, error)
	BeginAcquisition() error
	// Grab blocks until the next frame or ctx is done.
	Grab(ctx context.Context) (domain.Frame, error)
	EndAcquisition() error
	Close() error
}

// SimCamera is a bench driver producing 16-bit radiometric frames with a
// moving hot spot.
type SimCamera struct {
	Width, Height int
	Interval      time.Duration

	mu        sync.Mutex
	acquiring bool
	frame     int
	next      time.Time
}

func NewSimCamera(width, height int, interval time.Duration) *SimCamera {
	return &SimCamera{Width: width, Height: height, Interval: interval}
}

func (c *SimCamera) Detect(context.Context) bool { return true }

func (c *SimCamera) Configure(context.Context) (Calibration, error) {
	return Calibration{
		R: 16556, B: 1428, F: 1, X: 1.9, J0: 70, J1: 0.0105,
		H2O: 0.0082, Tau: 0.98, K2: 1.0, R1: 1, R2: 1, R3: 1,
		Model: "SIM-A35", Serial: "0000",
	}, nil
}

func (c *SimCamera) BeginAcquisition() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquiring = true
	c.next = time.Now()
	return nil
}

func (c *SimCamera) Grab(ctx context.Context) (domain.Frame, error) {
	c.mu.Lock()
	if !c.acquiring {
		c.mu.Unlock()
		return domain.Frame{}, errors.New("acquisition not started")
	}
	c.next = c.next.Add(c.Interval)
	wait := time.Until(c.next)
	n := c.frame
	c.frame++
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Frame{}, ctx.Err()
		case <-timer.C:
		}
	}

	data := make([]byte, c.Width*c.Height*2)
	cx := float64(n%c.Width) + 0.5
	cy := float64(c.Height) / 2
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			counts := 12000 + uint16(4000*math.Exp(-d*d/50))
			binary.LittleEndian.PutUint16(data[(y*c.Width+x)*2:], counts)
		}
	}
	return domain.Frame{Width: c.Width, Height: c.Height, Data: data}, nil
}

func (c *SimCamera) EndAcquisition() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquiring = false
	return nil
}

func (c *SimCamera) Close() error { return c.EndAcquisition() }
