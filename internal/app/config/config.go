package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/CaptureFlow/internal/adapters/external"
	"github.com/ghalamif/CaptureFlow/internal/adapters/microphone"
	"github.com/ghalamif/CaptureFlow/internal/adapters/robot"
	"github.com/ghalamif/CaptureFlow/internal/adapters/thermal"
	"github.com/ghalamif/CaptureFlow/internal/adapters/thermocouple"
)

type Config struct {
	Output    OutputConfig    `yaml:"output"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Timescale TimescaleConfig `yaml:"timescale"`

	Robot        robot.Config        `yaml:"robot"`
	Thermocouple thermocouple.Config `yaml:"thermocouple"`
	Microphone   microphone.Config   `yaml:"microphone"`
	Thermal      thermal.Config      `yaml:"thermal_camera"`
	External     []external.Config   `yaml:"external"`
}

type OutputConfig struct {
	BaseDir string `yaml:"base_dir"`
}

type SessionConfig struct {
	StatusInterval     time.Duration `yaml:"status_interval"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	JoinWarnInterval   time.Duration `yaml:"join_warn_interval"`
	AbortOnInitFailure *bool         `yaml:"abort_on_init_failure"`
}

// AbortOnInit reports the effective init failure policy.
func (s SessionConfig) AbortOnInit() bool {
	return s.AbortOnInitFailure == nil || *s.AbortOnInitFailure
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// CatalogConfig enables the sqlite run catalog when Path is set.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// TimescaleConfig enables the mirror sink when ConnString is set.
type TimescaleConfig struct {
	ConnString string   `yaml:"conn_string"`
	Table      string   `yaml:"table"`
	Sensors    []string `yaml:"sensors"`
	BatchSize  int      `yaml:"batch_size"`
}

// Mirrors reports whether the named sensor's records are mirrored.
func (t TimescaleConfig) Mirrors(sensor string) bool {
	if t.ConnString == "" {
		return false
	}
	if len(t.Sensors) == 0 {
		return true
	}
	for _, s := range t.Sensors {
		if s == sensor {
			return true
		}
	}
	return false
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes raw YAML and applies defaults and validation.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with only defaults applied and every
// sensor disabled.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Output.BaseDir == "" {
		c.Output.BaseDir = "."
	}
	if c.Session.StatusInterval == 0 {
		c.Session.StatusInterval = 5 * time.Second
	}
	if c.Session.PollInterval == 0 {
		c.Session.PollInterval = 100 * time.Millisecond
	}
	if c.Session.ProbeTimeout == 0 {
		c.Session.ProbeTimeout = 5 * time.Second
	}
	if c.Session.JoinWarnInterval == 0 {
		c.Session.JoinWarnInterval = 5 * time.Second
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "capture_samples"
	}
	if c.Timescale.BatchSize == 0 {
		c.Timescale.BatchSize = 500
	}

	c.Robot.ApplyDefaults()
	c.Thermocouple.ApplyDefaults()
	c.Microphone.ApplyDefaults()
	c.Thermal.ApplyDefaults()
	for i := range c.External {
		c.External[i].ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if c.Session.StatusInterval < 0 || c.Session.PollInterval < 0 {
		return fmt.Errorf("session intervals must be positive")
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Timescale.BatchSize < 0 {
		return fmt.Errorf("timescale.batch_size must be positive")
	}

	seen := map[string]string{}
	claim := func(section, name string) error {
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%s: sensor name %q already used by %s", section, name, prev)
		}
		seen[name] = section
		return nil
	}

	if c.Robot.Enabled {
		if err := c.Robot.Validate(); err != nil {
			return fmt.Errorf("robot config: %w", err)
		}
		if err := claim("robot", c.Robot.Name); err != nil {
			return err
		}
	}
	if c.Thermocouple.Enabled {
		if err := c.Thermocouple.Validate(); err != nil {
			return fmt.Errorf("thermocouple config: %w", err)
		}
		if err := claim("thermocouple", c.Thermocouple.Name); err != nil {
			return err
		}
	}
	if c.Microphone.Enabled {
		if err := c.Microphone.Validate(); err != nil {
			return fmt.Errorf("microphone config: %w", err)
		}
		if err := claim("microphone", c.Microphone.Name); err != nil {
			return err
		}
	}
	if c.Thermal.Enabled {
		if err := c.Thermal.Validate(); err != nil {
			return fmt.Errorf("thermal_camera config: %w", err)
		}
		if err := claim("thermal_camera", c.Thermal.Name); err != nil {
			return err
		}
	}
	for i := range c.External {
		ext := &c.External[i]
		if !ext.Enabled {
			continue
		}
		section := fmt.Sprintf("external[%d]", i)
		if err := ext.Validate(); err != nil {
			return fmt.Errorf("%s config: %w", section, err)
		}
		if err := claim(section, ext.Name); err != nil {
			return err
		}
	}
	return nil
}

// EnabledSensors lists the configured sensor names in construction order.
func (c *Config) EnabledSensors() []string {
	var out []string
	if c.Robot.Enabled {
		out = append(out, c.Robot.Name)
	}
	if c.Thermocouple.Enabled {
		out = append(out, c.Thermocouple.Name)
	}
	if c.Microphone.Enabled {
		out = append(out, c.Microphone.Name)
	}
	if c.Thermal.Enabled {
		out = append(out, c.Thermal.Name)
	}
	for _, ext := range c.External {
		if ext.Enabled {
			out = append(out, ext.Name)
		}
	}
	return out
}
