package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
output:
  base_dir: /data/runs
robot:
  enabled: true
  transport: opcua
  opcua:
    endpoint: opc.tcp://localhost:4840
    nodes:
      - node_id: "ns=2;s=Robot.WeldVolt"
thermocouple:
  enabled: true
  sample_rate: 2
external:
  - enabled: true
    command: /opt/box/pressure_box.py
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Session.StatusInterval != 5*time.Second {
		t.Fatalf("expected status interval default 5s, got %s", cfg.Session.StatusInterval)
	}
	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Fatalf("expected poll interval default 100ms, got %s", cfg.Session.PollInterval)
	}
	if !cfg.Session.AbortOnInit() {
		t.Fatalf("expected abort on init failure by default")
	}
	if cfg.Robot.OPCUA.Nodes[0].Column != "ns=2;s=Robot.WeldVolt" {
		t.Fatalf("expected column fallback to node ID, got %s", cfg.Robot.OPCUA.Nodes[0].Column)
	}
	if cfg.Thermocouple.Period() != 500*time.Millisecond {
		t.Fatalf("expected 500ms thermocouple period, got %s", cfg.Thermocouple.Period())
	}
	if cfg.Thermal.Queue.MaxQueueLen != 30 {
		t.Fatalf("expected thermal queue capacity 30, got %d", cfg.Thermal.Queue.MaxQueueLen)
	}
	if cfg.External[0].Name != "pressure_box" {
		t.Fatalf("expected external name derived from command, got %q", cfg.External[0].Name)
	}
	if cfg.External[0].Output != "pressure_box_data.csv" {
		t.Fatalf("expected collect output default, got %q", cfg.External[0].Output)
	}

	got := strings.Join(cfg.EnabledSensors(), ",")
	if got != "robot,thermocouple,pressure_box" {
		t.Fatalf("unexpected enabled sensors %s", got)
	}
}

func TestParseDurationsAndPolicy(t *testing.T) {
	cfg, err := Parse([]byte(`
session:
  status_interval: 2s
  join_warn_interval: 1500ms
  abort_on_init_failure: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Session.StatusInterval != 2*time.Second {
		t.Fatalf("expected 2s, got %s", cfg.Session.StatusInterval)
	}
	if cfg.Session.JoinWarnInterval != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", cfg.Session.JoinWarnInterval)
	}
	if cfg.Session.AbortOnInit() {
		t.Fatalf("expected explicit false to disable abort")
	}
	if len(cfg.EnabledSensors()) != 0 {
		t.Fatalf("expected no sensors enabled")
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	_, err := Parse([]byte(`
thermocouple:
  enabled: true
  name: bench
microphone:
  enabled: true
  name: bench
`))
	if err == nil || !strings.Contains(err.Error(), `"bench" already used by thermocouple`) {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}

func TestValidateRejectsBadSections(t *testing.T) {
	cases := map[string]string{
		"robot transport":   "robot:\n  enabled: true\n  transport: serial\n",
		"external command":  "external:\n  - enabled: true\n    name: box\n",
		"external output":   "external:\n  - enabled: true\n    command: box\n    output: /etc/passwd\n",
		"thermal queue":     "thermal_camera:\n  enabled: true\n  queue:\n    on_queue_full: spill\n",
		"log format":        "log:\n  format: xml\n",
		"empty document":    "",
	}
	for name, raw := range cases {
		_, err := Parse([]byte(raw))
		if name == "empty document" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", name, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestTimescaleMirrors(t *testing.T) {
	ts := TimescaleConfig{}
	if ts.Mirrors("robot") {
		t.Fatalf("mirror must be off without a connection string")
	}
	ts.ConnString = "postgres://localhost/capture"
	if !ts.Mirrors("robot") {
		t.Fatalf("empty sensor list mirrors everything")
	}
	ts.Sensors = []string{"thermocouple"}
	if ts.Mirrors("robot") || !ts.Mirrors("thermocouple") {
		t.Fatalf("sensor list not honoured")
	}
}
