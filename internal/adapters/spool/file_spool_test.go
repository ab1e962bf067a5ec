package spool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

func frameSample(seq uint64, payload ...byte) *domain.CaptureSample {
	s := domain.NewCaptureSample("cam", domain.KindThermalCamera, seq, time.Now())
	s.Frame = &domain.Frame{Width: 2, Height: 1, Data: payload}
	return s
}

func TestFileSpoolAppendIterateAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "FLIR", "frames.bin")

	sp, err := NewFileSpool(path)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}

	if err := sp.Append(frameSample(1, 0x01, 0x02)); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := sp.Append(frameSample(2, 0x03, 0x04)); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	var seqs []uint64
	if err := sp.Iterate(func(rec ports.SpoolRecord) error {
		seqs = append(seqs, rec.Seq)
		if rec.Frame.Width != 2 || rec.Frame.Height != 1 || len(rec.Frame.Data) != 2 {
			t.Fatalf("unexpected frame: %+v", rec.Frame)
		}
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("expected seqs [1 2], got %v", seqs)
	}

	if err := sp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if err := sp.Append(frameSample(3, 0x05)); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}

	reopened, err := NewFileSpool(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	stats := reopened.Stats()
	if stats.Records != 2 || stats.LastSeq != 2 {
		t.Fatalf("unexpected stats after reopen: %+v", stats)
	}
	if stats.SizeBytes != 2*(recordHeaderLen+2) {
		t.Fatalf("unexpected size %d", stats.SizeBytes)
	}
}

func TestFileSpoolTruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.bin")

	sp, err := NewFileSpool(path)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	if err := sp.Append(frameSample(1, 0xAA)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := appendGarbage(path); err != nil {
		t.Fatalf("append garbage: %v", err)
	}

	torn, err := ReadFile(path, func(ports.SpoolRecord) error { return nil })
	if err != nil || !torn {
		t.Fatalf("expected torn tail to be reported, torn=%v err=%v", torn, err)
	}

	reopened, err := NewFileSpool(path)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer reopened.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != recordHeaderLen+1 {
		t.Fatalf("expected torn tail truncated to %d bytes, got %d", recordHeaderLen+1, info.Size())
	}
}

func TestFileSpoolRejectsSampleWithoutFrame(t *testing.T) {
	sp, err := NewFileSpool(filepath.Join(t.TempDir(), "frames.bin"))
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	defer sp.Close()

	if err := sp.Append(domain.NewCaptureSample("cam", domain.KindThermalCamera, 1, time.Now())); err == nil {
		t.Fatalf("expected error for frameless sample")
	}
}

func TestFileSpoolRejectsOversizedFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.bin")
	sp, err := NewFileSpool(path)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	defer sp.Close()

	s := domain.NewCaptureSample("cam", domain.KindThermalCamera, 1, time.Now())
	s.Frame = &domain.Frame{Width: 70000, Height: 2, Data: []byte{1}}
	if err := sp.Append(s); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if st := sp.Stats(); st.Records != 0 {
		t.Fatalf("oversized frame was recorded: %+v", st)
	}
}

func appendGarbage(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte{0xFF, 0xAA})
	return err
}
