package robot

import (
	"errors"
	"fmt"
	"time"
)

// Config selects and tunes the robot controller transport.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"` // "rsi", "opcua", "sim"

	// RSI: the controller streams one XML document per UDP datagram.
	Listen      string        `yaml:"listen"`
	PingHost    string        `yaml:"ping_host"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Progress    time.Duration `yaml:"progress_interval"`

	OPCUA OPCUAConfig `yaml:"opcua"`

	SimInterval time.Duration `yaml:"sim_interval"`
}

// OPCUAConfig captures the details required to open an OPC UA session.
type OPCUAConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

// NodeConfig maps one monitored node to one record column.
type NodeConfig struct {
	NodeID string `yaml:"node_id"`
	Column string `yaml:"column"`
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "robot"
	}
	if c.Transport == "" {
		c.Transport = "rsi"
	}
	if c.Listen == "" {
		c.Listen = "192.168.1.25:59152"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.Progress <= 0 {
		c.Progress = 2 * time.Second
	}
	if c.SimInterval <= 0 {
		c.SimInterval = 12 * time.Millisecond
	}

	o := &c.OPCUA
	if o.SecurityMode == "" {
		o.SecurityMode = "None"
	}
	if o.SecurityPolicy == "" {
		o.SecurityPolicy = "None"
	}
	if o.ApplicationName == "" {
		o.ApplicationName = "CaptureFlow"
	}
	if o.PublishInterval <= 0 {
		o.PublishInterval = 100 * time.Millisecond
	}
	if o.SamplingInterval < 0 {
		o.SamplingInterval = 0
	}
	for i := range o.Nodes {
		if o.Nodes[i].Column == "" {
			o.Nodes[i].Column = o.Nodes[i].NodeID
		}
	}
}

func (c *Config) Validate() error {
	switch c.Transport {
	case "rsi":
		if c.Listen == "" {
			return errors.New("listen is required for rsi transport")
		}
	case "opcua":
		if c.OPCUA.Endpoint == "" {
			return errors.New("opcua.endpoint is required")
		}
		if len(c.OPCUA.Nodes) == 0 {
			return errors.New("at least one opcua node must be configured")
		}
	case "sim":
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}
