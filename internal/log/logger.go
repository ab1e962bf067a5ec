package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level  string    // "debug", "info", ...; falls back to LOG_LEVEL
	Format string    // "console" (default) or "json"
	Output io.Writer // defaults to os.Stderr
}

var (
	mu   sync.Mutex
	set  bool
	base zerolog.Logger
)

// Configure installs the global logger. The first explicit call wins; later
// calls are ignored so libraries cannot clobber the CLI's choice.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if set {
		return
	}
	base = build(cfg)
	set = true
}

func build(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	raw := cfg.Level
	if raw == "" {
		raw = os.Getenv("LOG_LEVEL")
	}
	if raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func logger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !set {
		base = build(Config{})
		set = true
	}
	return base
}

// L returns the configured base logger.
func L() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}

// WithSensor returns a child logger for one sensor pipeline.
func WithSensor(name string, kind domain.SensorKind) zerolog.Logger {
	return logger().With().
		Str(FieldComponent, "sensor").
		Str(FieldSensor, name).
		Str(FieldKind, string(kind)).
		Logger()
}
