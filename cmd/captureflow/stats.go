package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/spf13/cobra"

	"github.com/ghalamif/CaptureFlow/internal/adapters/catalog"
)

func newStatsCmd() *cobra.Command {
	var (
		url         string
		interval    time.Duration
		once        bool
		catalogPath string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Poll a running session's metrics endpoint, or list past sessions from the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if catalogPath != "" {
				return listSessions(cmd.Context(), out, catalogPath, limit)
			}
			if once {
				return printMetricsSnapshot(out, url)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Fprintf(out, "Streaming metrics from %s (Ctrl+C to stop)\n", url)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printMetricsSnapshot(out, url); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "stats error: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	cmd.Flags().BoolVar(&once, "once", false, "Print one snapshot and exit")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "List recent sessions from this sqlite catalog instead")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of sessions to list")
	return cmd
}

func printMetricsSnapshot(out io.Writer, url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	lines, err := filterMetrics(resp.Body, "captureflow_")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[%s]\n", time.Now().Format(time.RFC3339))
	for _, l := range lines {
		fmt.Fprintf(out, "  %s\n", l)
	}
	return nil
}

// filterMetrics parses the exposition text and renders one line per sample of
// every family whose name starts with prefix. Histograms and summaries are
// reduced to their _count and _sum series.
func filterMetrics(r io.Reader, prefix string) ([]string, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	names := make([]string, 0, len(families))
	for name := range families {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		mf := families[name]
		for _, m := range mf.GetMetric() {
			labels := formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out = append(out, sampleLine(name, labels, m.GetCounter().GetValue()))
			case dto.MetricType_GAUGE:
				out = append(out, sampleLine(name, labels, m.GetGauge().GetValue()))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				out = append(out,
					sampleLine(name+"_count", labels, float64(h.GetSampleCount())),
					sampleLine(name+"_sum", labels, h.GetSampleSum()))
			case dto.MetricType_SUMMARY:
				s := m.GetSummary()
				out = append(out,
					sampleLine(name+"_count", labels, float64(s.GetSampleCount())),
					sampleLine(name+"_sum", labels, s.GetSampleSum()))
			default:
				out = append(out, sampleLine(name, labels, m.GetUntyped().GetValue()))
			}
		}
	}
	return out, nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

func sampleLine(name, labels string, v float64) string {
	return name + labels + " " + strconv.FormatFloat(v, 'g', -1, 64)
}

func listSessions(ctx context.Context, out io.Writer, path string, limit int) error {
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()

	sessions, err := cat.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %s  %-9s %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"), s.ID, s.State, s.OutputRoot)
		for _, info := range s.Sensors {
			line := fmt.Sprintf("    %-16s samples=%d dropped=%d", info.Name, info.Samples, info.Dropped)
			if info.Error != "" {
				line += " error=" + info.Error
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}
