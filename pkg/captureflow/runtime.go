package captureflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/adapters/catalog"
	"github.com/ghalamif/CaptureFlow/internal/adapters/external"
	"github.com/ghalamif/CaptureFlow/internal/adapters/microphone"
	"github.com/ghalamif/CaptureFlow/internal/adapters/observability"
	"github.com/ghalamif/CaptureFlow/internal/adapters/robot"
	"github.com/ghalamif/CaptureFlow/internal/adapters/sink"
	"github.com/ghalamif/CaptureFlow/internal/adapters/thermal"
	"github.com/ghalamif/CaptureFlow/internal/adapters/thermocouple"
	"github.com/ghalamif/CaptureFlow/internal/app/orchestrator"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	adapters []Adapter
	push     []*PushSensor
	taps     []RecordFunc
	metrics  Metrics
	reporter Reporter
	catalog  Catalog
	stop     <-chan struct{}
}

// WithAdapter adds a custom sensor next to the configured ones.
func WithAdapter(a Adapter) RuntimeOption {
	return func(o *runtimeOverrides) {
		if a != nil {
			o.adapters = append(o.adapters, a)
		}
	}
}

// WithPushSensor adds a sensor fed by the caller's Publish calls.
func WithPushSensor(p *PushSensor) RuntimeOption {
	return func(o *runtimeOverrides) {
		if p != nil {
			o.push = append(o.push, p)
		}
	}
}

// WithRecordTap lets fn observe every record written by every sensor.
func WithRecordTap(fn RecordFunc) RuntimeOption {
	return func(o *runtimeOverrides) {
		if fn != nil {
			o.taps = append(o.taps, fn)
		}
	}
}

// WithMetrics replaces the default Prometheus metrics. The metrics HTTP
// server only runs with the default backend.
func WithMetrics(m Metrics) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.metrics = m
	}
}

// WithReporter receives probe, initialization and status output.
func WithReporter(r Reporter) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.reporter = r
	}
}

// WithCatalog replaces the sqlite catalog from the configuration.
func WithCatalog(c Catalog) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.catalog = c
	}
}

// WithStopSignal ends collection when ch is closed.
func WithStopSignal(ch <-chan struct{}) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.stop = ch
	}
}

// Runtime wires the configured sensors, the optional mirror, catalog and
// metrics endpoint around one lifecycle controller. A Runtime runs exactly
// one session.
type Runtime struct {
	cfg     *Config
	ctrl    *orchestrator.Controller
	prom    *observability.PromMetrics
	server  *observability.Server
	db      *sql.DB
	catalog ports.Catalog
	owned   bool
	stop    <-chan struct{}
	logger  zerolog.Logger

	releaseOnce sync.Once
}

// NewRuntime builds the configured sensors. Secondary outputs (Timescale
// mirror, sqlite catalog) that cannot be opened are logged and skipped.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{
		cfg:    cfg,
		stop:   overrides.stop,
		logger: xlog.WithComponent("runtime"),
	}
	sessionID := uuid.NewString()

	metrics := overrides.metrics
	if metrics == nil {
		rt.prom = observability.NewPromMetrics()
		metrics = rt.prom
	}

	var decorators []ports.SinkDecorator
	for _, fn := range overrides.taps {
		decorators = append(decorators, tapDecorator(fn))
	}
	if cfg.Timescale.ConnString != "" {
		if dec, err := rt.openMirror(sessionID); err != nil {
			rt.logger.Warn().Err(err).Msg("timescale mirror disabled")
		} else {
			decorators = append(decorators, dec)
		}
	}

	switch {
	case overrides.catalog != nil:
		rt.catalog = overrides.catalog
	case cfg.Catalog.Path != "":
		c, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			rt.logger.Warn().Err(err).Str(xlog.FieldPath, cfg.Catalog.Path).Msg("run catalog disabled")
		} else {
			rt.catalog, rt.owned = c, true
		}
	}

	baseOpts := base.Options{Metrics: metrics, Decorate: decorators}
	adapters, err := buildSensors(cfg, baseOpts)
	if err != nil {
		rt.release()
		return nil, err
	}
	for _, p := range overrides.push {
		a, err := p.attach(baseOpts)
		if err != nil {
			rt.release()
			return nil, err
		}
		adapters = append(adapters, a)
	}
	adapters = append(adapters, overrides.adapters...)

	rt.ctrl = orchestrator.New(adapters, orchestrator.Options{
		BaseDir:            cfg.Output.BaseDir,
		SessionID:          sessionID,
		StatusInterval:     cfg.Session.StatusInterval,
		PollInterval:       cfg.Session.PollInterval,
		ProbeTimeout:       cfg.Session.ProbeTimeout,
		JoinWarnInterval:   cfg.Session.JoinWarnInterval,
		AbortOnInitFailure: cfg.Session.AbortOnInit(),
		Reporter:           overrides.reporter,
		Catalog:            rt.catalog,
		Metrics:            metrics,
	})
	return rt, nil
}

func (r *Runtime) openMirror(sessionID string) (ports.SinkDecorator, error) {
	db, err := sink.OpenTimescale(r.cfg.Timescale.ConnString)
	if err != nil {
		return nil, err
	}
	r.db = db
	mirror := sink.NewTimescaleMirror(db, r.cfg.Timescale.Table, sessionID)
	ts := r.cfg.Timescale
	return func(s ports.RecordSink) ports.RecordSink {
		if !ts.Mirrors(s.Name()) {
			return s
		}
		return sink.NewMirror(s, mirror, ts.BatchSize)
	}, nil
}

func buildSensors(cfg *Config, opts base.Options) ([]ports.Adapter, error) {
	var out []ports.Adapter
	if cfg.Robot.Enabled {
		a, err := robot.New(cfg.Robot, opts)
		if err != nil {
			return nil, fmt.Errorf("robot: %w", err)
		}
		out = append(out, a)
	}
	if cfg.Thermocouple.Enabled {
		a, err := thermocouple.New(cfg.Thermocouple, opts)
		if err != nil {
			return nil, fmt.Errorf("thermocouple: %w", err)
		}
		out = append(out, a)
	}
	if cfg.Microphone.Enabled {
		a, err := microphone.New(cfg.Microphone, opts)
		if err != nil {
			return nil, fmt.Errorf("microphone: %w", err)
		}
		out = append(out, a)
	}
	if cfg.Thermal.Enabled {
		a, err := thermal.New(cfg.Thermal, opts)
		if err != nil {
			return nil, fmt.Errorf("thermal camera: %w", err)
		}
		out = append(out, a)
	}
	for _, ec := range cfg.External {
		if !ec.Enabled {
			continue
		}
		a, err := external.New(ec, opts)
		if err != nil {
			return nil, fmt.Errorf("external %s: %w", ec.Name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Probe checks every sensor. ErrNoSensors means nothing can be collected.
func (r *Runtime) Probe(ctx context.Context) ([]SensorHandle, error) {
	return r.ctrl.Probe(ctx)
}

// Prepare creates the session directory and initializes available sensors.
func (r *Runtime) Prepare(ctx context.Context) error {
	return r.ctrl.Prepare(ctx)
}

// Collect runs every ready sensor until the stop signal, ctx cancellation,
// RequestStop, or a sensor-raised abort, then releases everything.
func (r *Runtime) Collect(ctx context.Context) error {
	defer r.release()
	r.startMetrics()
	return r.ctrl.Collect(ctx, r.stop)
}

// Run is a shortcut for Probe + Prepare + Collect.
func (r *Runtime) Run(ctx context.Context) error {
	defer func() { _ = r.Close(context.WithoutCancel(ctx)) }()
	if _, err := r.Probe(ctx); err != nil {
		return err
	}
	if err := r.Prepare(ctx); err != nil {
		return err
	}
	return r.Collect(ctx)
}

// RequestStop ends collection as if the operator asked for it.
func (r *Runtime) RequestStop() { r.ctrl.RequestStop() }

// Session returns a snapshot of the run session.
func (r *Runtime) Session() RunSession { return r.ctrl.Session() }

// MetricsAddr is the bound metrics address while collecting, or "".
func (r *Runtime) MetricsAddr() string {
	if r.server == nil {
		return ""
	}
	return r.server.Addr()
}

// Close releases sensors of a session that never collected, or stops a
// running collection and waits for it. Secondary outputs are closed last.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.ctrl.Close(ctx)
	switch r.ctrl.State() {
	case domain.StateCollecting, domain.StateStopping:
		select {
		case <-r.ctrl.Done():
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
	r.release()
	return err
}

func (r *Runtime) startMetrics() {
	if r.prom == nil || r.cfg.Metrics.Addr == "" {
		return
	}
	srv, err := observability.Start(r.cfg.Metrics.Addr, r.prom)
	if err != nil {
		r.logger.Warn().Err(err).Str("addr", r.cfg.Metrics.Addr).Msg("metrics server disabled")
		return
	}
	r.server = srv
	r.logger.Info().Str("addr", srv.Addr()).Msg("metrics server listening")
}

func (r *Runtime) release() {
	r.releaseOnce.Do(func() {
		if r.server != nil {
			if err := r.server.Shutdown(context.Background()); err != nil {
				r.logger.Warn().Err(err).Msg("metrics server shutdown")
			}
		}
		if r.owned {
			if err := r.catalog.Close(); err != nil {
				r.logger.Warn().Err(err).Msg("catalog close")
			}
		}
		if r.db != nil {
			if err := r.db.Close(); err != nil {
				r.logger.Warn().Err(err).Msg("timescale close")
			}
		}
	})
}
