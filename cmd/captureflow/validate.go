package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without touching hardware",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config %s looks good ✅\n", root.configPath)
			sensors := cfg.EnabledSensors()
			if len(sensors) == 0 {
				fmt.Fprintln(out, "warning: no sensors enabled")
				return nil
			}
			fmt.Fprintf(out, "enabled sensors: %s\n", strings.Join(sensors, ", "))
			return nil
		},
	}
}
