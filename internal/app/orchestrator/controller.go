// Package orchestrator drives one collection run through its lifecycle:
// probe every sensor, prepare the session directory and the available
// sensors, run one pipeline per ready sensor until the shared token is set,
// then join, release and record the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

const (
	eventProbe   = "probe"
	eventPrepare = "prepare"
	eventCollect = "collect"
	eventStop    = "stop"
	eventFinish  = "finish"

	// DirPrefix prefixes every session directory name.
	DirPrefix = "data_collection_"
	dirLayout = "20060102_150405"
)

// errPipelinesDone is the token cause when every pipeline ended on its own.
var errPipelinesDone = errors.New("all pipelines finished")

type Options struct {
	BaseDir   string
	SessionID string

	StatusInterval     time.Duration
	PollInterval       time.Duration
	ProbeTimeout       time.Duration
	JoinWarnInterval   time.Duration
	AbortOnInitFailure bool

	Reporter Reporter
	Catalog  ports.Catalog
	Metrics  ports.Metrics
	Now      func() time.Time
}

func (o *Options) applyDefaults() {
	if o.BaseDir == "" {
		o.BaseDir = "."
	}
	if o.SessionID == "" {
		o.SessionID = uuid.NewString()
	}
	if o.StatusInterval <= 0 {
		o.StatusInterval = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 5 * time.Second
	}
	if o.JoinWarnInterval <= 0 {
		o.JoinWarnInterval = 5 * time.Second
	}
	if o.Reporter == nil {
		o.Reporter = NopReporter{}
	}
	if o.Metrics == nil {
		o.Metrics = ports.NopMetrics{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Controller owns the sensor handles and the cancel token of exactly one
// session. It is not reusable: once stopped every lifecycle call returns
// domain.ErrSessionFinished.
type Controller struct {
	opts     Options
	adapters []ports.Adapter
	tok      *domain.CancelToken
	machine  *fsm.FSM
	logger   zerolog.Logger

	mu       sync.Mutex
	handles  []domain.SensorHandle
	errs     []error
	session  domain.RunSession
	running  map[string]bool
	finished chan struct{}
}

func New(adapters []ports.Adapter, opts Options) *Controller {
	opts.applyDefaults()
	c := &Controller{
		opts:     opts,
		adapters: adapters,
		tok:      domain.NewCancelToken(context.Background()),
		logger:   xlog.WithComponent("orchestrator"),
		handles:  make([]domain.SensorHandle, len(adapters)),
		errs:     make([]error, len(adapters)),
		running:  make(map[string]bool),
		finished: make(chan struct{}),
		session: domain.RunSession{
			ID:    opts.SessionID,
			State: domain.StateIdle,
		},
	}
	for i, a := range adapters {
		c.handles[i] = domain.SensorHandle{Name: a.Name(), Kind: a.Kind()}
	}

	idle := string(domain.StateIdle)
	probed := string(domain.StateProbed)
	prepared := string(domain.StatePrepared)
	collecting := string(domain.StateCollecting)
	stopping := string(domain.StateStopping)
	stopped := string(domain.StateStopped)

	c.machine = fsm.NewFSM(
		idle,
		fsm.Events{
			{Name: eventProbe, Src: []string{idle}, Dst: probed},
			{Name: eventPrepare, Src: []string{probed}, Dst: prepared},
			{Name: eventCollect, Src: []string{prepared}, Dst: collecting},
			{Name: eventStop, Src: []string{probed, prepared, collecting}, Dst: stopping},
			{Name: eventFinish, Src: []string{stopping}, Dst: stopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Info().
					Str(xlog.FieldOldState, e.Src).
					Str(xlog.FieldNewState, e.Dst).
					Msg("lifecycle transition")
				c.mu.Lock()
				c.session.State = domain.RunState(e.Dst)
				c.mu.Unlock()
			},
		},
	)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() domain.RunState {
	return domain.RunState(c.machine.Current())
}

// Token is the run's shared stop signal.
func (c *Controller) Token() *domain.CancelToken { return c.tok }

// Done is closed once the controller reaches Stopped.
func (c *Controller) Done() <-chan struct{} { return c.finished }

// Handles returns a copy of the per-sensor handles.
func (c *Controller) Handles() []domain.SensorHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SensorHandle(nil), c.handles...)
}

// Session returns a snapshot of the run session.
func (c *Controller) Session() domain.RunSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	s.ActiveSensors = append([]string(nil), c.session.ActiveSensors...)
	s.Sensors = append([]domain.SensorInfo(nil), c.session.Sensors...)
	return s
}

// RequestStop sets the token with an operator stop cause.
func (c *Controller) RequestStop() {
	c.tok.Set(domain.ErrOperatorStop)
}

// Run performs the full lifecycle. stop may be nil; closing it, cancelling
// ctx or calling RequestStop ends collection.
func (c *Controller) Run(ctx context.Context, stop <-chan struct{}) error {
	if _, err := c.Probe(ctx); err != nil {
		return err
	}
	if err := c.Prepare(ctx); err != nil {
		return err
	}
	return c.Collect(ctx, stop)
}

func (c *Controller) guard(want domain.RunState) error {
	switch got := c.State(); got {
	case want:
		return nil
	case domain.StateStopping, domain.StateStopped:
		return domain.ErrSessionFinished
	default:
		return fmt.Errorf("%w: expected %s, in %s", domain.ErrInvalidState, want, got)
	}
}

// transition ignores ctx cancellation: a cancelled run must still be able to
// move through Stopping to Stopped.
func (c *Controller) transition(ctx context.Context, event string) error {
	if err := c.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidState, event, err)
	}
	return nil
}

// Probe checks every sensor concurrently, each bounded by the probe timeout.
// A probe still running at its deadline counts as not detected, whatever it
// reports later.
// With zero available sensors the run ends here in Idle with
// domain.ErrNoSensors and nothing is written.
func (c *Controller) Probe(ctx context.Context) ([]domain.SensorHandle, error) {
	if err := c.guard(domain.StateIdle); err != nil {
		return nil, err
	}

	results := make([]bool, len(c.adapters))
	var g errgroup.Group
	for i, a := range c.adapters {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
			defer cancel()
			res := make(chan bool, 1)
			go func() { res <- c.safeProbe(pctx, a) }()
			select {
			case results[i] = <-res:
			case <-pctx.Done():
				c.logger.Warn().Err(pctx.Err()).
					Str(xlog.FieldSensor, a.Name()).
					Dur("timeout", c.opts.ProbeTimeout).
					Msg("probe did not answer in time")
			}
			return nil
		})
	}
	_ = g.Wait()

	available := 0
	c.mu.Lock()
	for i := range c.handles {
		c.handles[i].Available = results[i]
		if results[i] {
			available++
		}
	}
	handles := append([]domain.SensorHandle(nil), c.handles...)
	c.syncSensorsLocked()
	c.mu.Unlock()

	for _, h := range handles {
		c.opts.Reporter.ProbeResult(h)
		c.logger.Info().
			Str(xlog.FieldSensor, h.Name).
			Str(xlog.FieldKind, string(h.Kind)).
			Bool("available", h.Available).
			Msg("probe finished")
	}

	if available == 0 {
		c.logger.Warn().Msg("no sensors detected; nothing to collect")
		return handles, domain.ErrNoSensors
	}
	return handles, c.transition(ctx, eventProbe)
}

func (c *Controller) safeProbe(ctx context.Context, a ports.Adapter) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str(xlog.FieldSensor, a.Name()).Interface("panic", r).Msg("probe panicked")
			ok = false
		}
	}()
	return a.Probe(ctx)
}

// Prepare creates the session directory and initializes every available
// sensor. Under the abort policy any initialization failure releases all
// sensors and ends the session.
func (c *Controller) Prepare(ctx context.Context) error {
	if err := c.guard(domain.StateProbed); err != nil {
		return err
	}

	dir, err := c.makeOutputDir()
	if err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	c.logger = c.logger.With().Str(xlog.FieldSessionID, c.opts.SessionID).Logger()
	c.logger.Info().Str(xlog.FieldPath, dir).Msg("session directory created")

	c.mu.Lock()
	c.session.OutputRoot = dir
	c.session.CreatedAt = c.opts.Now().Round(0)
	c.mu.Unlock()

	if c.opts.Catalog != nil {
		s := c.Session()
		if err := c.opts.Catalog.BeginSession(ctx, &s); err != nil {
			c.logger.Warn().Err(err).Msg("catalog begin failed")
		}
	}

	var failures []error
	var active []string
	for i, a := range c.adapters {
		if !c.handle(i).Available {
			continue
		}
		if err := c.safeInit(ctx, a, dir); err != nil {
			var se *domain.SensorError
			if !errors.As(err, &se) {
				err = domain.NewSensorError(a.Name(), domain.ErrInitialization, err)
			}
			c.mu.Lock()
			c.errs[i] = err
			c.mu.Unlock()
			failures = append(failures, err)
			c.logger.Error().Err(err).Str(xlog.FieldSensor, a.Name()).Msg("initialization failed")
			c.opts.Reporter.InitResult(a.Name(), err)
			continue
		}
		c.mu.Lock()
		c.handles[i].Ready = true
		c.mu.Unlock()
		active = append(active, a.Name())
		c.opts.Reporter.InitResult(a.Name(), nil)
	}

	c.mu.Lock()
	c.session.SetActive(active)
	c.syncSensorsLocked()
	c.mu.Unlock()

	if len(active) == 0 || (len(failures) > 0 && c.opts.AbortOnInitFailure) {
		c.logger.Error().Int("failed", len(failures)).Msg("aborting session after initialization failures")
		return errors.Join(errors.Join(failures...), c.abort(ctx))
	}
	if len(failures) > 0 {
		c.logger.Warn().Strs("active", active).Msg("continuing with reduced sensor set")
	}

	if err := c.transition(ctx, eventPrepare); err != nil {
		return err
	}
	c.writeManifest()
	return nil
}

func (c *Controller) safeInit(ctx context.Context, a ports.Adapter, dir string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewSensorError(a.Name(), domain.ErrInitialization, fmt.Errorf("panic: %v", r))
		}
	}()
	return a.Initialize(ctx, dir)
}

func (c *Controller) makeOutputDir() (string, error) {
	if err := os.MkdirAll(c.opts.BaseDir, 0o755); err != nil {
		return "", err
	}
	name := DirPrefix + c.opts.Now().Format(dirLayout)
	candidate := filepath.Join(c.opts.BaseDir, name)
	for n := 1; ; n++ {
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return filepath.Abs(candidate)
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		candidate = filepath.Join(c.opts.BaseDir, fmt.Sprintf("%s_%d", name, n))
	}
}

// Collect starts one pipeline per active sensor and waits for the token.
// It then joins every pipeline, releases all sensors and records the outcome.
// A nil return means the run ended by operator request or because every
// pipeline finished; a sensor that set the token is returned as the cause.
func (c *Controller) Collect(ctx context.Context, stop <-chan struct{}) error {
	if err := c.guard(domain.StatePrepared); err != nil {
		return err
	}
	if err := c.transition(ctx, eventCollect); err != nil {
		return err
	}

	started := c.opts.Now()
	results := make([]error, len(c.adapters))
	var g errgroup.Group
	for i, a := range c.adapters {
		if !c.handle(i).Active() {
			continue
		}
		name := a.Name()
		c.setRunning(name, true)
		g.Go(func() error {
			defer c.setRunning(name, false)
			results[i] = c.safeRun(a)
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	c.wait(ctx, stop, done, started)

	if err := c.transition(ctx, eventStop); err != nil {
		c.logger.Error().Err(err).Msg("stop transition")
	}
	c.join(done)

	for i, err := range results {
		if err == nil {
			continue
		}
		c.mu.Lock()
		c.errs[i] = err
		c.mu.Unlock()
		c.logger.Error().Err(err).Str(xlog.FieldSensor, c.adapters[i].Name()).Msg("pipeline failed")
	}

	shutdownErr := c.shutdownAll()
	c.finish(ctx)

	cause := c.tok.Cause()
	switch {
	case errors.Is(cause, domain.ErrOperatorStop):
		return shutdownErr
	case errors.Is(cause, errPipelinesDone):
		return errors.Join(errors.Join(results...), shutdownErr)
	default:
		return errors.Join(cause, shutdownErr)
	}
}

func (c *Controller) wait(ctx context.Context, stop, done <-chan struct{}, started time.Time) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	lastStatus := started

	for {
		select {
		case <-c.tok.Done():
			c.logger.Info().AnErr("cause", c.tok.Cause()).Msg("stop signal received")
			return
		case <-stop:
			c.tok.Set(domain.ErrOperatorStop)
			stop = nil
		case <-ctx.Done():
			c.tok.Set(fmt.Errorf("%w: %w", domain.ErrOperatorStop, context.Cause(ctx)))
		case <-done:
			c.tok.Set(errPipelinesDone)
		case now := <-ticker.C:
			if now.Sub(lastStatus) >= c.opts.StatusInterval {
				lastStatus = now
				c.reportStatus(now.Sub(started))
			}
		}
	}
}

func (c *Controller) reportStatus(elapsed time.Duration) {
	report := StatusReport{Elapsed: elapsed}
	c.mu.Lock()
	for i, a := range c.adapters {
		if !c.handles[i].Active() {
			continue
		}
		st := SensorStatus{Name: a.Name(), Kind: a.Kind(), Running: c.running[a.Name()]}
		if sr, ok := a.(ports.StatsReporter); ok {
			stats := sr.Stats()
			st.Samples, st.Dropped = stats.Samples, stats.Dropped
		}
		report.Sensors = append(report.Sensors, st)
	}
	c.mu.Unlock()

	if report.Active() == 0 {
		return
	}
	c.opts.Reporter.Status(report)
}

func (c *Controller) safeRun(a ports.Adapter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Metrics.IncCounter(ports.MetricPipelineFailures, a.Name(), 1)
			err = domain.StreamingError(a.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	return a.Run(c.tok)
}

func (c *Controller) join(done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.JoinWarnInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.logger.Warn().Strs("sensors", c.stillRunning()).Msg("waiting for pipelines to drain")
		}
	}
}

func (c *Controller) setRunning(name string, up bool) {
	c.mu.Lock()
	c.running[name] = up
	c.mu.Unlock()
	v := 0.0
	if up {
		v = 1
	}
	c.opts.Metrics.SetGauge(ports.MetricSensorUp, name, v)
}

func (c *Controller) stillRunning() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, a := range c.adapters {
		if c.running[a.Name()] {
			out = append(out, a.Name())
		}
	}
	return out
}

func (c *Controller) handle(i int) domain.SensorHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[i]
}

// Close releases a session that never reached collection. During collection
// it only sets the token; Collect performs the teardown.
func (c *Controller) Close(ctx context.Context) error {
	switch c.State() {
	case domain.StateProbed, domain.StatePrepared:
		return c.abort(ctx)
	case domain.StateCollecting:
		c.RequestStop()
	}
	return nil
}

func (c *Controller) abort(ctx context.Context) error {
	c.tok.Set(domain.ErrOperatorStop)
	if err := c.transition(ctx, eventStop); err != nil {
		return err
	}
	err := c.shutdownAll()
	c.finish(ctx)
	return err
}

// shutdownAll releases every available sensor in reverse order, including
// those whose initialization failed part way.
func (c *Controller) shutdownAll() error {
	var errs []error
	for i := len(c.adapters) - 1; i >= 0; i-- {
		if !c.handle(i).Available {
			continue
		}
		a := c.adapters[i]
		if err := c.safeShutdown(a); err != nil {
			c.logger.Error().Err(err).Str(xlog.FieldSensor, a.Name()).Msg("shutdown failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) safeShutdown(a ports.Adapter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewSensorError(a.Name(), domain.ErrShutdown, fmt.Errorf("panic: %v", r))
		}
	}()
	return a.Shutdown()
}

func (c *Controller) finish(ctx context.Context) {
	c.mu.Lock()
	c.session.FinishedAt = c.opts.Now().Round(0)
	c.syncSensorsLocked()
	c.mu.Unlock()

	if err := c.transition(ctx, eventFinish); err != nil {
		c.logger.Error().Err(err).Msg("finish transition")
	}
	session := c.Session()

	if session.OutputRoot != "" {
		c.writeManifest()
		if c.opts.Catalog != nil {
			if err := c.opts.Catalog.FinishSession(ctx, &session); err != nil {
				c.logger.Warn().Err(err).Msg("catalog finish failed")
			}
		}
	}
	for _, name := range session.ActiveSensors {
		c.opts.Metrics.SetGauge(ports.MetricSensorUp, name, 0)
	}

	c.opts.Reporter.Completed(session)
	c.logger.Info().Str(xlog.FieldPath, session.OutputRoot).Msg("data collection complete")
	close(c.finished)
}

func (c *Controller) writeManifest() {
	s := c.Session()
	if err := WriteManifest(s.OutputRoot, s); err != nil {
		c.logger.Warn().Err(err).Msg("write session manifest")
	}
}

func (c *Controller) syncSensorsLocked() {
	sensors := make([]domain.SensorInfo, len(c.adapters))
	for i, a := range c.adapters {
		h := c.handles[i]
		info := domain.SensorInfo{
			Name:      h.Name,
			Kind:      h.Kind,
			Available: h.Available,
			Ready:     h.Ready,
		}
		if sr, ok := a.(ports.StatsReporter); ok && h.Ready {
			st := sr.Stats()
			info.Samples, info.Dropped = st.Samples, st.Dropped
		}
		if c.errs[i] != nil {
			info.Error = c.errs[i].Error()
		}
		sensors[i] = info
	}
	c.session.Sensors = sensors
}
