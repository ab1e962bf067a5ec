// Package thermal streams radiometric frames from a thermal camera through a
// bounded producer/consumer queue into a frame spool.
package thermal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/adapters/queue"
	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/adapters/spool"
	"github.com/ghalamif/CaptureFlow/internal/app/pipeline"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

const (
	// Dir holds everything the camera writes inside the session directory.
	Dir       = "FLIR"
	SpoolFile = "frames.bin"
	IndexFile = "thermal_camera_index.csv"
)

type Adapter struct {
	*base.Base
	cfg    Config
	cam    Camera
	pc     *pipeline.ProducerConsumer
	frames *frameSink
}

func New(cfg Config, opts base.Options) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithCamera(cfg, NewSimCamera(cfg.Width, cfg.Height, cfg.FrameInterval), opts), nil
}

func NewWithCamera(cfg Config, cam Camera, opts base.Options) *Adapter {
	cfg.ApplyDefaults()
	return &Adapter{
		Base: base.New(cfg.Name, domain.KindThermalCamera, opts),
		cfg:  cfg,
		cam:  cam,
	}
}

func (a *Adapter) Probe(ctx context.Context) bool {
	return a.cam.Detect(ctx)
}

// Initialize configures the camera, persists its calibration and opens the
// frame spool. Acquisition itself starts in Run.
func (a *Adapter) Initialize(ctx context.Context, outputRoot string) error {
	if err := a.BeginInit(); err != nil {
		return err
	}
	a.OnShutdown(a.cam.Close)

	cal, err := a.cam.Configure(ctx)
	if err != nil {
		return a.InitError(fmt.Errorf("configure camera: %w", err))
	}
	cal.Emiss = a.cfg.Emissivity
	cal.DistanceM = a.cfg.DistanceM

	dir := filepath.Join(outputRoot, Dir)
	if err := WriteCalibration(dir, cal); err != nil {
		return a.InitError(fmt.Errorf("write calibration: %w", err))
	}
	a.Logger.Info().Str(xlog.FieldPath, filepath.Join(dir, CalibrationFile)).Msg("calibration saved")

	sp, err := spool.NewFileSpool(filepath.Join(dir, SpoolFile))
	if err != nil {
		return a.InitError(err)
	}
	index, err := sink.NewCSVSink(a.Name(), sink.CSVConfig{
		Path:   filepath.Join(dir, IndexFile),
		Header: []string{"Timestamp", "Relative Time (s)", "Frame", "Width", "Height", "Bytes"},
		Row:    indexRow,
	})
	if err != nil {
		_ = sp.Close()
		return a.InitError(err)
	}
	a.frames = &frameSink{name: a.Name(), spool: sp, index: index}
	out := a.Decorate(a.frames)
	a.OnShutdown(out.Close)

	a.pc = &pipeline.ProducerConsumer{
		Sensor:      a.Name(),
		Kind:        a.Kind(),
		Capture:     a.grab,
		Queue:       queue.NewMemQueue(a.cfg.Queue.MaxQueueLen),
		Policy:      a.cfg.Queue,
		Sink:        out,
		MaxFailures: a.cfg.MaxFailures,
		Counters:    &a.Counters,
		Metrics:     a.Metrics(),
		Logger:      &a.Logger,
	}
	return nil
}

func (a *Adapter) grab(ctx context.Context) (pipeline.Payload, error) {
	f, err := a.cam.Grab(ctx)
	if err != nil {
		return pipeline.Payload{}, err
	}
	return pipeline.Payload{Frame: &f}, nil
}

// Run starts acquisition right before collecting and ends it after the
// producer/consumer pair has drained.
func (a *Adapter) Run(tok *domain.CancelToken) error {
	if a.pc == nil {
		return a.NotInitialized()
	}
	if err := a.cam.BeginAcquisition(); err != nil {
		return domain.StreamingError(a.Name(), fmt.Errorf("begin acquisition: %w", err))
	}
	runErr := a.pc.Run(tok)
	if err := a.cam.EndAcquisition(); err != nil {
		a.Logger.Warn().Err(err).Str(xlog.FieldEvent, "camera.end_failed").Msg("ending acquisition failed")
	}
	return runErr
}

// Latest returns the newest frame for live preview, or nil before the first.
func (a *Adapter) Latest() *domain.CaptureSample {
	if a.pc == nil {
		return nil
	}
	return a.pc.Latest()
}

// SpoolStats reports what has been persisted so far.
func (a *Adapter) SpoolStats() ports.SpoolStats {
	if a.frames == nil {
		return ports.SpoolStats{}
	}
	return a.frames.spool.Stats()
}

// frameSink persists the raw frame into the spool and a summary row into the
// index so frames can be located by time without scanning the spool.
type frameSink struct {
	name  string
	spool ports.FrameSpool
	index ports.RecordSink

	once     sync.Once
	closeErr error
}

func (f *frameSink) Name() string { return f.name }

func (f *frameSink) Write(s *domain.CaptureSample) error {
	if err := f.spool.Append(s); err != nil {
		return err
	}
	return f.index.Write(s)
}

func (f *frameSink) Flush() error {
	return errors.Join(f.spool.Flush(), f.index.Flush())
}

func (f *frameSink) Close() error {
	f.once.Do(func() {
		f.closeErr = errors.Join(f.spool.Close(), f.index.Close())
	})
	return f.closeErr
}

func indexRow(s *domain.CaptureSample) []string {
	w, h, n := 0, 0, 0
	if s.Frame != nil {
		w, h, n = s.Frame.Width, s.Frame.Height, len(s.Frame.Data)
	}
	return []string{
		sink.FormatWall(s),
		sink.FormatRelative(s),
		strconv.FormatUint(s.Seq, 10),
		strconv.Itoa(w),
		strconv.Itoa(h),
		strconv.Itoa(n),
	}
}

var (
	_ ports.Adapter       = (*Adapter)(nil)
	_ ports.StatsReporter = (*Adapter)(nil)
	_ ports.RecordSink    = (*frameSink)(nil)
)
