// Package logging is the structured logger used across meetiq: a small
// interface over zerolog so library packages can take a Logger option and
// tests can pass NewNopLogger.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type sessionKey struct{}

// ContextWithSession tags ctx with a meeting session id. Loggers derived
// with WithContext add it as session_id.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session id set by ContextWithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

// Level is a minimum severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config configures NewLogger.
type Config struct {
	Level       Level
	ServiceName string
	// JSONFormat selects JSON lines; otherwise zerolog's console writer.
	JSONFormat bool
	// Output defaults to stderr so stdout stays free for reports.
	Output io.Writer
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: "meetiq",
		Output:      os.Stderr,
	}
}

// Logger is the logging interface taken by every meetiq component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger carrying fields on every entry.
	With(fields ...Field) Logger

	// WithContext returns a child logger carrying the session id and trace
	// ids found in ctx.
	WithContext(ctx context.Context) Logger
}

// Field is one structured key/value.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err builds the conventional "error" field.
func Err(err error) Field {
	return Field{Key: zerolog.ErrorFieldName, Value: err}
}

// fieldList flattens fields into zerolog's alternating key/value form.
func fieldList(fields []Field) []interface{} {
	out := make([]interface{}, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

type logger struct {
	zl zerolog.Logger
}

// NewLogger builds a zerolog-backed Logger. A nil cfg uses DefaultConfig.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service_name", cfg.ServiceName).
		Logger()
	return &logger{zl: zl}
}

// ParseLevel maps a Level, case-insensitively, to zerolog. Unknown levels
// are info.
func ParseLevel(l Level) zerolog.Level {
	switch strings.ToLower(string(l)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *logger) Debug(msg string, fields ...Field) { l.zl.Debug().Fields(fieldList(fields)).Msg(msg) }
func (l *logger) Info(msg string, fields ...Field)  { l.zl.Info().Fields(fieldList(fields)).Msg(msg) }
func (l *logger) Warn(msg string, fields ...Field)  { l.zl.Warn().Fields(fieldList(fields)).Msg(msg) }
func (l *logger) Error(msg string, fields ...Field) { l.zl.Error().Fields(fieldList(fields)).Msg(msg) }

func (l *logger) With(fields ...Field) Logger {
	return &logger{zl: l.zl.With().Fields(fieldList(fields)).Logger()}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	c := l.zl.With()
	if id, ok := SessionFromContext(ctx); ok {
		c = c.Str("session_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		c = c.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	return &logger{zl: c.Logger()}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field)              {}
func (nopLogger) Info(string, ...Field)               {}
func (nopLogger) Warn(string, ...Field)               {}
func (nopLogger) Error(string, ...Field)              {}
func (n nopLogger) With(...Field) Logger              { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return nopLogger{}
}
