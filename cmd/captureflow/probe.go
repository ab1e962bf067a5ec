package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghalamif/CaptureFlow"
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check which enabled sensors are reachable, without recording",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rt, err := captureflow.NewRuntime(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			out := cmd.OutOrStdout()
			handles, err := rt.Probe(cmd.Context())
			for _, h := range handles {
				mark := "✗"
				if h.Available {
					mark = "✓"
				}
				fmt.Fprintf(out, "%s %-16s %s\n", mark, h.Name, h.Kind)
			}
			if errors.Is(err, captureflow.ErrNoSensors) && len(handles) == 0 {
				fmt.Fprintln(out, "no sensors enabled in config")
			}
			return err
		},
	}
}
