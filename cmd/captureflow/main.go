package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ghalamif/CaptureFlow"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "captureflow",
		Short: "Synchronized multi-sensor data collection",
		Long: `CaptureFlow probes the configured sensors, prepares a timestamped session
directory and records every available sensor concurrently until the operator
stops the run.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(opts),
		newProbeCmd(opts),
		newValidateCmd(opts),
		newInspectCmd(),
		newStatsCmd(),
	)
	return root
}

// loadConfig reads the config and installs the global logger from it.
func (o *rootOptions) loadConfig() (*captureflow.Config, error) {
	cfg, err := captureflow.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	xlog.Configure(xlog.Config{Level: level, Format: cfg.Log.Format})
	return cfg, nil
}
