package captureflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/adapters/push"
)

var (
	// ErrPushStopped is returned by Publish once the run has ended.
	ErrPushStopped = push.ErrStopped
	// ErrPushDetached is returned by Publish before the sensor is added to a runtime.
	ErrPushDetached = errors.New("captureflow: push sensor not attached to a runtime")
)

// PushConfig describes a sensor fed by Publish calls.
type PushConfig struct {
	Name     string
	Columns  []string
	Decimals int
	QueueLen int
}

// PushSensor lets the embedding program act as an instrument. Each Publish
// becomes one row of <name>_data.csv, stamped when the sample is accepted.
type PushSensor struct {
	cfg PushConfig

	mu      sync.Mutex
	adapter *push.Adapter
}

func NewPushSensor(cfg PushConfig) (*PushSensor, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("push sensor name is required")
	}
	return &PushSensor{cfg: cfg}, nil
}

func (p *PushSensor) Name() string { return p.cfg.Name }

// Publish blocks until the sample is accepted, the run ends, or ctx is done.
func (p *PushSensor) Publish(ctx context.Context, values ...float64) error {
	p.mu.Lock()
	a := p.adapter
	p.mu.Unlock()
	if a == nil {
		return ErrPushDetached
	}
	return a.Publish(ctx, values)
}

func (p *PushSensor) attach(opts base.Options) (*push.Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adapter != nil {
		return nil, fmt.Errorf("push sensor %q already attached", p.cfg.Name)
	}
	cfg := push.Config{
		Name:     p.cfg.Name,
		Columns:  p.cfg.Columns,
		Decimals: p.cfg.Decimals,
	}
	cfg.Queue.MaxQueueLen = p.cfg.QueueLen
	a, err := push.New(cfg, opts)
	if err != nil {
		return nil, err
	}
	p.adapter = a
	return a, nil
}
