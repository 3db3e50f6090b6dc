// Package logger is the field-based facade over log/slog used by the HTTP
// layer and the application handlers. Request logs and infrastructure logs
// share one slog handler, so both land in the same stream and format.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level aliases slog.Level so callers never import both packages.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel accepts debug, info, warn/warning and error in any case.
// Anything else is info.
func ParseLevel(s string) Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	return l
}

// Field is one structured key/value pair.
type Field = slog.Attr

func String(key, value string) Field      { return slog.String(key, value) }
func Int(key string, value int) Field     { return slog.Int(key, value) }
func Int64(key string, value int64) Field { return slog.Int64(key, value) }
func Bool(key string, value bool) Field   { return slog.Bool(key, value) }
func Any(key string, value any) Field     { return slog.Any(key, value) }

// Err logs the message only, so wrapped errors stay readable in JSON.
func Err(err error) Field {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}

// PVP field names shared by every log line about a match.
func MatchID(id string) Field       { return String("match_id", id) }
func UserID(id int64) Field         { return Int64("user_id", id) }
func SeasonID(id int64) Field       { return Int64("season_id", id) }
func Result(r string) Field         { return String("result", r) }
func Component(name string) Field   { return String("component", name) }
func Latency(d time.Duration) Field { return String("latency", d.String()) }

type Logger struct {
	sl *slog.Logger
}

type Options struct {
	Output io.Writer
	Level  Level
	// Format is "json" or "text".
	Format    string
	AddSource bool
}

func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, Format: "json"}
}

func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}
	if strings.EqualFold(opts.Format, "text") {
		return &Logger{sl: slog.New(slog.NewTextHandler(opts.Output, hopts))}
	}
	return &Logger{sl: slog.New(slog.NewJSONHandler(opts.Output, hopts))}
}

func Default() *Logger { return New(DefaultOptions()) }

// Nop discards everything.
func Nop() *Logger { return New(Options{Output: io.Discard, Level: LevelError}) }

func (l *Logger) Slog() *slog.Logger { return l.sl }

func (l *Logger) With(fields ...Field) *Logger {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return &Logger{sl: l.sl.With(args...)}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	l.sl.LogAttrs(context.Background(), level, msg, fields...)
}

type ctxKey struct{}

// WithContext attaches a request-scoped logger.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached by WithContext, or fallback.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return fallback
}
