package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/CaptureFlow"
)

// Feeds a push sensor from this process and fans every written record out
// to a consumer goroutine.
func main() {
	tap, records, closeTap := captureflow.NewChannelTap(64)
	defer closeTap()

	load, err := captureflow.NewPushSensor(captureflow.PushConfig{
		Name:     "spindle_load",
		Columns:  []string{"Load (%)"},
		Decimals: 2,
	})
	if err != nil {
		log.Fatal(err)
	}

	flow, err := captureflow.Conf("../../config.yaml", captureflow.WithFlowOptions(captureflow.WithRecordTap(tap)))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go fanoutWorker("ingest", records)
	go publish(ctx, load)

	if err := flow.StreamIN(captureflow.StreamInPush(load)).Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

func publish(ctx context.Context, p *captureflow.PushSensor) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			v := 50 + 20*math.Sin(now.Sub(start).Seconds())
			err := p.Publish(ctx, v)
			switch {
			case errors.Is(err, captureflow.ErrPushDetached):
				// runtime not built yet
			case err != nil:
				return
			}
		}
	}
}

func fanoutWorker(name string, records <-chan captureflow.Record) {
	counts := map[string]int{}
	for r := range records {
		counts[r.Sensor]++
		if counts[r.Sensor]%250 == 0 {
			fmt.Printf("[%s] %s: %d records forwarded\n", name, r.Sensor, counts[r.Sensor])
		}
	}
}
