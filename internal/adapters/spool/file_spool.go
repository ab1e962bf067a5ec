package spool

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// record format: [8 bytes seq][8 bytes unix nanos][2 bytes width][2 bytes height][4 bytes len][len bytes frame]
const recordHeaderLen = 24

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("spool: closed")

// ErrFrameTooLarge is returned for frames the record header cannot describe.
var ErrFrameTooLarge = errors.New("spool: frame exceeds record header limits")

// FileSpool appends raw frames to a single framed file. A torn tail left by a
// crash is truncated on open.
type FileSpool struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	records   uint64
	lastSeq   uint64
	sizeBytes int64
	closed    bool
}

func NewFileSpool(path string) (*FileSpool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	s := &FileSpool{
		path:   path,
		file:   f,
		writer: bufio.NewWriterSize(f, 1<<20),
	}
	if err := s.bootstrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileSpool) bootstrap() error {
	var (
		offset  int64
		records uint64
		lastSeq uint64
	)
	torn, err := scan(s.path, func(hdr header, _ []byte) error {
		offset += recordHeaderLen + int64(hdr.length)
		records++
		lastSeq = hdr.seq
		return nil
	}, false)
	if err != nil {
		return err
	}
	if torn {
		if err := s.file.Truncate(offset); err != nil {
			return err
		}
	}
	s.sizeBytes = offset
	s.records = records
	s.lastSeq = lastSeq
	_, err = s.file.Seek(0, io.SeekEnd)
	return err
}

func (s *FileSpool) Append(sample *domain.CaptureSample) error {
	if sample == nil || sample.Frame == nil {
		return fmt.Errorf("spool: sample has no frame")
	}
	frame := sample.Frame
	if frame.Width < 0 || frame.Width > math.MaxUint16 || frame.Height < 0 || frame.Height > math.MaxUint16 {
		return fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, frame.Width, frame.Height)
	}
	if int64(len(frame.Data)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame.Data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], sample.Seq)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(sample.Wall.UnixNano()))
	binary.BigEndian.PutUint16(hdr[16:18], uint16(frame.Width))
	binary.BigEndian.PutUint16(hdr[18:20], uint16(frame.Height))
	binary.BigEndian.PutUint32(hdr[20:24], uint32(len(frame.Data)))

	if _, err := s.writer.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := s.writer.Write(frame.Data); err != nil {
		return err
	}

	s.records++
	s.lastSeq = sample.Seq
	s.sizeBytes += int64(len(hdr) + len(frame.Data))
	return nil
}

// Iterate flushes pending writes and replays every complete record in order.
func (s *FileSpool) Iterate(fn func(rec ports.SpoolRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	_, err := ReadFile(s.path, fn)
	return err
}

func (s *FileSpool) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.writer.Flush()
}

// Close flushes, syncs, and closes the file. Calling it twice is a no-op.
func (s *FileSpool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.writer.Flush()
	if e := s.file.Sync(); e != nil && err == nil {
		err = e
	}
	if e := s.file.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

func (s *FileSpool) Stats() ports.SpoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ports.SpoolStats{
		Records:   s.records,
		LastSeq:   s.lastSeq,
		SizeBytes: s.sizeBytes,
	}
}

// ReadFile replays a spool file without opening it for writing. A torn final
// record is skipped and reported through the returned bool.
func ReadFile(path string, fn func(rec ports.SpoolRecord) error) (bool, error) {
	return scan(path, func(hdr header, body []byte) error {
		return fn(ports.SpoolRecord{
			Seq:      hdr.seq,
			Captured: time.Unix(0, int64(hdr.unixNano)),
			Frame: domain.Frame{
				Width:  int(hdr.width),
				Height: int(hdr.height),
				Data:   body,
			},
		})
	}, true)
}

type header struct {
	seq      uint64
	unixNano uint64
	width    uint16
	height   uint16
	length   uint32
}

func scan(path string, fn func(hdr header, body []byte) error, readBody bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var raw [recordHeaderLen]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return true, nil
			}
			return false, fmt.Errorf("spool scan header: %w", err)
		}
		hdr := header{
			seq:      binary.BigEndian.Uint64(raw[0:8]),
			unixNano: binary.BigEndian.Uint64(raw[8:16]),
			width:    binary.BigEndian.Uint16(raw[16:18]),
			height:   binary.BigEndian.Uint16(raw[18:20]),
			length:   binary.BigEndian.Uint32(raw[20:24]),
		}

		var body []byte
		if readBody {
			body = make([]byte, hdr.length)
			_, err = io.ReadFull(r, body)
		} else {
			_, err = io.CopyN(io.Discard, r, int64(hdr.length))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return true, nil
			}
			return false, fmt.Errorf("spool scan body: %w", err)
		}

		if err := fn(hdr, body); err != nil {
			return false, err
		}
	}
}

var _ ports.FrameSpool = (*FileSpool)(nil)
