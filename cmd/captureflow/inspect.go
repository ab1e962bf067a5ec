package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghalamif/CaptureFlow/internal/adapters/spool"
	"github.com/ghalamif/CaptureFlow/internal/adapters/thermal"
	"github.com/ghalamif/CaptureFlow/internal/app/orchestrator"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session-dir | frames.bin>",
		Short: "Summarize a session directory or a thermal frame spool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectPath(cmd.OutOrStdout(), args[0])
		},
	}
}

func inspectPath(out io.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return inspectSpool(out, path)
	}

	session, err := orchestrator.ReadManifest(path)
	switch {
	case err == nil:
		fmt.Fprintf(out, "session %s (%s)\n", session.ID, session.State)
		fmt.Fprintf(out, "  created:  %s\n", session.CreatedAt.Format(time.RFC3339))
		if !session.FinishedAt.IsZero() {
			fmt.Fprintf(out, "  finished: %s (%s)\n", session.FinishedAt.Format(time.RFC3339),
				session.FinishedAt.Sub(session.CreatedAt).Truncate(time.Millisecond))
		}
		for _, s := range session.Sensors {
			status := "skipped"
			switch {
			case s.Error != "":
				status = "failed: " + s.Error
			case s.Ready:
				status = "ok"
			case s.Available:
				status = "not initialized"
			}
			fmt.Fprintf(out, "  %-16s %-14s samples=%-8d dropped=%-6d %s\n", s.Name, s.Kind, s.Samples, s.Dropped, status)
		}
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(out, "%s has no %s\n", path, orchestrator.ManifestFile)
	default:
		return fmt.Errorf("read manifest: %w", err)
	}

	frames := filepath.Join(path, thermal.Dir, thermal.SpoolFile)
	if _, err := os.Stat(frames); err == nil {
		return inspectSpool(out, frames)
	}
	return nil
}

func inspectSpool(out io.Writer, path string) error {
	var (
		count       int
		bytes       int64
		first, last ports.SpoolRecord
	)
	torn, err := spool.ReadFile(path, func(rec ports.SpoolRecord) error {
		if count == 0 {
			first = rec
		}
		last = rec
		count++
		bytes += int64(len(rec.Frame.Data))
		return nil
	})
	if err != nil {
		return fmt.Errorf("read spool %s: %w", path, err)
	}

	fmt.Fprintf(out, "spool %s: %d frames, %d payload bytes\n", path, count, bytes)
	if count > 0 {
		fmt.Fprintf(out, "  frame size: %dx%d\n", first.Frame.Width, first.Frame.Height)
		fmt.Fprintf(out, "  seq %d..%d over %s\n", first.Seq, last.Seq,
			last.Captured.Sub(first.Captured).Truncate(time.Millisecond))
	}
	if torn {
		fmt.Fprintln(out, "  warning: final record is incomplete and was skipped")
	}
	return nil
}
