package captureflow

import (
	"github.com/ghalamif/CaptureFlow/internal/adapters/external"
	"github.com/ghalamif/CaptureFlow/internal/adapters/microphone"
	"github.com/ghalamif/CaptureFlow/internal/adapters/robot"
	"github.com/ghalamif/CaptureFlow/internal/adapters/thermal"
	"github.com/ghalamif/CaptureFlow/internal/adapters/thermocouple"
	"github.com/ghalamif/CaptureFlow/internal/app/config"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// OutputConfig selects the base directory for session directories.
	OutputConfig = config.OutputConfig
	// SessionConfig holds status, join and init failure policy.
	SessionConfig = config.SessionConfig
	LogConfig     = config.LogConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// CatalogConfig configures the sqlite run catalog.
	CatalogConfig = config.CatalogConfig
	// TimescaleConfig configures the optional mirror sink.
	TimescaleConfig = config.TimescaleConfig

	RobotConfig         = robot.Config
	OPCUAConfig         = robot.OPCUAConfig
	OPCUANodeConfig     = robot.NodeConfig
	ThermocoupleConfig  = thermocouple.Config
	MicrophoneConfig    = microphone.Config
	ThermalCameraConfig = thermal.Config
	ExternalConfig      = external.Config

	// QueuePolicy controls a producer/consumer hand-off.
	QueuePolicy = ports.QueuePolicy
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns defaults with every built-in sensor disabled, for
// programs that only use push sensors or their own adapters.
func DefaultConfig() *Config {
	return config.Default()
}
