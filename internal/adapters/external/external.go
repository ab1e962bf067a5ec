// Package external drives auxiliary instruments that ship as standalone
// executables speaking a small command-line contract:
//
//	<cmd> --check                              exit 0 when the device is present
//	<cmd> --collect <abs path>                 stream to a file until terminated
//	<cmd> --record <path> [--raw] [--png]      record to a directory until terminated
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghalamif/CaptureFlow/internal/adapters/base"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	xlog "github.com/ghalamif/CaptureFlow/internal/log"
	"github.com/ghalamif/CaptureFlow/internal/ports"
	"github.com/ghalamif/CaptureFlow/internal/procgroup"
)

type Config struct {
	Enabled bool     `yaml:"enabled"`
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`

	Mode   string `yaml:"mode"`   // "collect" or "record"
	Output string `yaml:"output"` // file (collect) or directory (record) under the session root
	Raw    bool   `yaml:"raw"`
	PNG    bool   `yaml:"png"`

	CheckTimeout time.Duration `yaml:"check_timeout"`
	Grace        time.Duration `yaml:"grace"`
	// AbortOnExit raises the shared token when the process exits on its own.
	AbortOnExit bool `yaml:"abort_on_exit"`
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" && c.Command != "" {
		c.Name = strings.TrimSuffix(filepath.Base(c.Command), filepath.Ext(c.Command))
	}
	if c.Mode == "" {
		c.Mode = "collect"
	}
	if c.Output == "" {
		if c.Mode == "record" {
			c.Output = c.Name
		} else {
			c.Output = c.Name + "_data.csv"
		}
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 5 * time.Second
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Command == "" {
		return errors.New("command is required")
	}
	switch c.Mode {
	case "collect", "record":
	default:
		return fmt.Errorf("mode must be collect or record, got %q", c.Mode)
	}
	if filepath.IsAbs(c.Output) || strings.Contains(c.Output, "..") {
		return fmt.Errorf("output must be relative to the session directory, got %q", c.Output)
	}
	return nil
}

type Adapter struct {
	*base.Base
	cfg    Config
	target string

	mu  sync.Mutex
	pid int
}

func New(cfg Config, opts base.Options) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		Base: base.New(cfg.Name, domain.KindExternalDevice, opts),
		cfg:  cfg,
	}, nil
}

// Probe runs "--check" with a bounded timeout.
func (a *Adapter) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CheckTimeout)
	defer cancel()

	cmd := a.command(ctx, "--check")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second
	err := cmd.Run()
	if msg := strings.TrimSpace(out.String()); msg != "" {
		a.Logger.Debug().Str("output", msg).Msg("device check output")
	}
	if err != nil {
		a.Logger.Debug().Err(err).Msg("device check failed")
		return false
	}
	return true
}

// Initialize resolves the absolute output location. Record mode gets its
// directory created up front.
func (a *Adapter) Initialize(_ context.Context, outputRoot string) error {
	if err := a.BeginInit(); err != nil {
		return err
	}
	target, err := filepath.Abs(filepath.Join(outputRoot, a.cfg.Output))
	if err != nil {
		return a.InitError(err)
	}
	if a.cfg.Mode == "record" {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return a.InitError(err)
		}
	}
	a.target = target
	return nil
}

// Run starts the executable and supervises it until the token is set, then
// terminates its process group with a grace period before killing it.
func (a *Adapter) Run(tok *domain.CancelToken) error {
	if a.target == "" {
		return a.NotInitialized()
	}

	args := []string{"--collect", a.target}
	if a.cfg.Mode == "record" {
		args = []string{"--record", a.target}
		if a.cfg.Raw {
			args = append(args, "--raw")
		}
		if a.cfg.PNG {
			args = append(args, "--png")
		}
	}
	cmd := a.command(context.Background(), args...)
	procgroup.Set(cmd)
	stdout := newLineLogger(a.Logger, "stdout")
	stderr := newLineLogger(a.Logger, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = a.cfg.Grace

	if err := cmd.Start(); err != nil {
		return domain.StreamingError(a.Name(), fmt.Errorf("start %s: %w", a.cfg.Command, err))
	}
	a.mu.Lock()
	a.pid = cmd.Process.Pid
	a.mu.Unlock()
	a.Logger.Info().Int(xlog.FieldPID, cmd.Process.Pid).Str(xlog.FieldPath, a.target).Msg("device process started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	defer func() {
		stdout.Flush()
		stderr.Flush()
		a.mu.Lock()
		a.pid = 0
		a.mu.Unlock()
	}()

	select {
	case err := <-waitCh:
		if tok.IsSet() {
			return nil
		}
		if err == nil {
			err = errors.New("process exited before stop")
		}
		serr := domain.StreamingError(a.Name(), err)
		a.Logger.Error().Err(err).Str(xlog.FieldEvent, "device.exited").Bool("escalate", a.cfg.AbortOnExit).Msg("device process exited early")
		if a.cfg.AbortOnExit {
			tok.Set(serr)
		}
		return serr
	case <-tok.Done():
		err := procgroup.Terminate(cmd, waitCh, a.cfg.Grace)
		a.Logger.Info().AnErr("exit", err).Msg("device process stopped")
		return nil
	}
}

// PID returns the running process id, or 0.
func (a *Adapter) PID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pid
}

func (a *Adapter) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append(append([]string(nil), a.cfg.Args...), args...)
	cmd := exec.CommandContext(ctx, a.cfg.Command, full...)
	cmd.Dir = a.cfg.Dir
	return cmd
}

// lineLogger turns a child's output stream into one log entry per line.
type lineLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	stream string
	buf    []byte
}

func newLineLogger(logger zerolog.Logger, stream string) *lineLogger {
	return &lineLogger{logger: logger, stream: stream}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if text == "" {
		return
	}
	l.logger.Info().Str("stream", l.stream).Msg(text)
}

var _ ports.Adapter = (*Adapter)(nil)
