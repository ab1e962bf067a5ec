package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghalamif/CaptureFlow"
	"github.com/ghalamif/CaptureFlow/internal/app/orchestrator"
	cfbase "github.com/ghalamif/CaptureFlow/pkg/captureflow"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		yes     bool
		baseDir string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Probe, prepare and collect one session",
		Long: `Run probes every enabled sensor, creates data_collection_<timestamp> under the
output directory, initializes the available sensors and, after confirmation,
collects until q + Enter, Ctrl+C or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if baseDir != "" {
				cfg.Output.BaseDir = baseDir
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, cfg, yes, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Start collecting without waiting for Enter")
	cmd.Flags().StringVarP(&baseDir, "output", "o", "", "Override output.base_dir")
	return cmd
}

func runSession(ctx context.Context, cfg *captureflow.Config, yes bool, stdin io.Reader, out io.Writer) error {
	in := bufio.NewReader(stdin)
	stopCh := make(chan struct{})

	rt, err := captureflow.NewRuntime(cfg,
		captureflow.WithReporter(cfbase.NewConsoleReporter(out)),
		captureflow.WithStopSignal(stopCh),
	)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	fmt.Fprintln(out, "Checking sensors...")
	if _, err := rt.Probe(ctx); err != nil {
		return err
	}
	if err := rt.Prepare(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Session directory: %s\n", rt.Session().OutputRoot)

	if !yes {
		fmt.Fprintln(out, "Press Enter to start data collection (Ctrl+C to cancel)")
		entered := make(chan bool, 1)
		go func() { entered <- orchestrator.WaitForEnter(in) }()
		select {
		case ok := <-entered:
			if !ok {
				return errors.New("input closed before collection was confirmed")
			}
		case <-ctx.Done():
			fmt.Fprintln(out, "Cancelled before collection started.")
			return nil
		}
	}

	fmt.Fprintln(out, "Collecting. Enter q to stop.")
	typed := orchestrator.StopOnInput(in)
	collectDone := make(chan struct{})
	defer close(collectDone)
	go func() {
		select {
		case <-typed:
			close(stopCh)
		case <-collectDone:
		}
	}()

	return rt.Collect(ctx)
}
