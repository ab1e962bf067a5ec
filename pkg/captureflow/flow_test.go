package captureflow

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Output.BaseDir = t.TempDir()
	cfg.Session.PollInterval = 5 * time.Millisecond
	return cfg
}

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	ps, err := NewPushSensor(PushConfig{Name: "bench", Columns: []string{"force"}})
	if err != nil {
		t.Fatalf("NewPushSensor: %v", err)
	}

	rt, err := flow.
		StreamIN(StreamInPush(ps)).
		StreamOUT(StreamOutCallback(func(Record) {}))
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	if rt.prom == nil {
		t.Fatalf("expected default prometheus metrics")
	}

	if _, err := NewRuntime(cfg, WithPushSensor(ps)); err == nil {
		t.Fatalf("expected a push sensor to attach to one runtime only")
	}
}

func TestRunWithPushSensorWritesRecords(t *testing.T) {
	cfg := testConfig(t)

	ps, err := NewPushSensor(PushConfig{Name: "bench", Columns: []string{"force", "torque"}, Decimals: 1})
	if err != nil {
		t.Fatalf("NewPushSensor: %v", err)
	}

	var (
		mu   sync.Mutex
		seen []Record
	)
	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig: %v", err)
	}
	rt, err := flow.StreamIN(StreamInPush(ps)).StreamOUT(StreamOutCallback(func(r Record) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("StreamOUT: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(ctx) }()

	pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pubCancel()
	for i := 0; i < 20; i++ {
		if err := ps.Publish(pubCtx, float64(i), float64(i)/2); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}

	if err := ps.Publish(context.Background(), 1, 2); !errors.Is(err, ErrPushStopped) {
		t.Fatalf("expected ErrPushStopped after the run, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 20 {
		t.Fatalf("expected 20 tapped records, got %d", len(seen))
	}
	if seen[3].Sensor != "bench" || seen[3].Values[0] != 3 || seen[3].Kind != KindPush {
		t.Fatalf("unexpected record %+v", seen[3])
	}

	session := rt.Session()
	f, err := os.Open(filepath.Join(session.OutputRoot, "bench_data.csv"))
	if err != nil {
		t.Fatalf("open record stream: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 21 {
		t.Fatalf("expected header + 20 rows, got %d", len(rows))
	}
	if rows[0][2] != "force" || rows[20][2] != "19.0" || rows[20][3] != "9.5" {
		t.Fatalf("unexpected csv content: %v / %v", rows[0], rows[20])
	}
}

func TestRunWithoutSensorsReportsNoSensors(t *testing.T) {
	cfg := testConfig(t)
	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig: %v", err)
	}
	err = flow.Run(context.Background())
	if !errors.Is(err, ErrNoSensors) {
		t.Fatalf("expected ErrNoSensors, got %v", err)
	}
	entries, _ := os.ReadDir(cfg.Output.BaseDir)
	if len(entries) != 0 {
		t.Fatalf("expected no session directory, found %d entries", len(entries))
	}
}

func TestPublishBeforeAttach(t *testing.T) {
	ps, err := NewPushSensor(PushConfig{Name: "loose"})
	if err != nil {
		t.Fatalf("NewPushSensor: %v", err)
	}
	if err := ps.Publish(context.Background(), 1); !errors.Is(err, ErrPushDetached) {
		t.Fatalf("expected ErrPushDetached, got %v", err)
	}
	if _, err := NewPushSensor(PushConfig{}); err == nil {
		t.Fatalf("expected name to be required")
	}
}
