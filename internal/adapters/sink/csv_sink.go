package sink

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// ErrSinkClosed is returned by Write after Close.
var ErrSinkClosed = errors.New("sink: closed")

// RowFunc renders one sample as a CSV row.
type RowFunc func(s *domain.CaptureSample) []string

// CSVConfig describes one per-sensor record stream.
type CSVConfig struct {
	Path string
	// Preamble is an optional row written before the header of a new file.
	Preamble []string
	Header   []string
	Row      RowFunc
}

// CSVSink appends rows to a per-sensor CSV file. The header (and preamble) is
// written only when the file is new or empty, so reopening appends.
type CSVSink struct {
	mu     sync.Mutex
	name   string
	file   *os.File
	buf    *bufio.Writer
	w      *csv.Writer
	row    RowFunc
	closed bool
}

func NewCSVSink(name string, cfg CSVConfig) (*CSVSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("csv sink %q: path is required", name)
	}
	if cfg.Row == nil {
		cfg.Row = DefaultRow(6)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	buf := bufio.NewWriterSize(f, 64<<10)
	s := &CSVSink{
		name: name,
		file: f,
		buf:  buf,
		w:    csv.NewWriter(buf),
		row:  cfg.Row,
	}

	if info.Size() == 0 {
		if len(cfg.Preamble) > 0 {
			if err := s.w.Write(cfg.Preamble); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		if len(cfg.Header) > 0 {
			if err := s.w.Write(cfg.Header); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		// The header reaches disk even if the run captures nothing.
		if err := s.flushLocked(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *CSVSink) Name() string { return s.name }

func (s *CSVSink) Write(sample *domain.CaptureSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	return s.w.Write(s.row(sample))
}

func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.flushLocked()
}

func (s *CSVSink) flushLocked() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.buf.Flush()
}

// Close flushes buffered rows and closes the file. A second call is a no-op.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.flushLocked()
	if e := s.file.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

// DefaultRow renders (wall timestamp, relative seconds, values...) with the
// given number of decimals for values.
func DefaultRow(decimals int) RowFunc {
	return func(s *domain.CaptureSample) []string {
		row := make([]string, 0, 2+len(s.Values))
		row = append(row, FormatWall(s), FormatRelative(s))
		for _, v := range s.Values {
			row = append(row, strconv.FormatFloat(v, 'f', decimals, 64))
		}
		return row
	}
}

// FormatWall renders the wall-clock stamp with microsecond precision.
func FormatWall(s *domain.CaptureSample) string {
	return s.Wall.Format("2006-01-02 15:04:05.000000")
}

// FormatRelative renders the start-relative offset in seconds.
func FormatRelative(s *domain.CaptureSample) string {
	return strconv.FormatFloat(s.Relative.Seconds(), 'f', 6, 64)
}

var _ ports.RecordSink = (*CSVSink)(nil)
