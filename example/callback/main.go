package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/CaptureFlow/pkg/captureflow"
)

func main() {
	flow, err := captureflow.Conf("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(r captureflow.Record) {
		if r.Seq%100 != 0 {
			return
		}
		fmt.Printf("%s sensor=%s seq=%d t=%s values=%v\n",
			r.Timestamp.Format(time.RFC3339Nano),
			r.Sensor,
			r.Seq,
			r.Relative,
			r.Values,
		)
	}

	if err := flow.Run(ctx, captureflow.StreamOutCallback(callback)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
