package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

type options struct {
	level   zerolog.Level
	service string
	json    bool
	out     io.Writer
}

// Option configures a logger built by New.
type Option func(*options)

// WithLevel sets the minimum level from its name ("debug", "info", ...).
// Unknown names keep the default info level.
func WithLevel(name string) Option {
	return func(o *options) {
		o.level = ParseLevel(name)
	}
}

// WithService tags every event with a service field.
func WithService(name string) Option {
	return func(o *options) {
		o.service = name
	}
}

// WithJSON switches from console output to JSON lines.
func WithJSON(enabled bool) Option {
	return func(o *options) {
		o.json = enabled
	}
}

// WithOutput sets the destination writer.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// New creates a new structured logger. Without options it writes
// human-readable console output to stdout at info level.
func New(opts ...Option) zerolog.Logger {
	o := options{level: zerolog.InfoLevel, out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	out := o.out
	if !o.json {
		out = zerolog.ConsoleWriter{
			Out:        o.out,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(out).Level(o.level).With().Timestamp().Caller()
	if o.service != "" {
		ctx = ctx.Str("service", o.service)
	}
	return ctx.Logger()
}

// NewWithWriter creates a new structured logger with a custom writer
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
