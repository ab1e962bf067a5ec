package thermal

import (
	"fmt"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/ports"
)

type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Name          string        `yaml:"name"`
	Driver        string        `yaml:"driver"` // "sim"
	FrameInterval time.Duration `yaml:"frame_interval"`
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`

	// Environment overrides written into the calibration file.
	Emissivity float64 `yaml:"emissivity"`
	DistanceM  float64 `yaml:"distance_m"`

	Queue       ports.QueuePolicy `yaml:"queue"`
	MaxFailures int               `yaml:"max_failures"`
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "thermal_camera"
	}
	if c.Driver == "" {
		c.Driver = "sim"
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 100 * time.Millisecond
	}
	if c.Width <= 0 {
		c.Width = 160
	}
	if c.Height <= 0 {
		c.Height = 120
	}
	if c.Emissivity <= 0 {
		c.Emissivity = 0.95
	}
	if c.DistanceM <= 0 {
		c.DistanceM = 1
	}
	if c.Queue.MaxQueueLen <= 0 {
		c.Queue.MaxQueueLen = 30
	}
	if c.Queue.MaxBatchSize <= 0 {
		c.Queue.MaxBatchSize = 8
	}
	if c.Queue.IdleSleep <= 0 {
		c.Queue.IdleSleep = 5 * time.Millisecond
	}
	if c.Queue.OnQueueFull == "" {
		c.Queue.OnQueueFull = "block"
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 10
	}
}

func (c *Config) Validate() error {
	if c.Driver != "sim" {
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	switch c.Queue.OnQueueFull {
	case "block", "drop":
	default:
		return fmt.Errorf("queue.on_queue_full must be block or drop, got %q", c.Queue.OnQueueFull)
	}
	if c.Emissivity > 1 {
		return fmt.Errorf("emissivity must be <= 1")
	}
	return nil
}
