// Package logger provides structured JSON logging for the progression
// engine, backed by log/slog. It adds leveled construction from config
// strings, context propagation, and field helpers for the identifiers
// that show up in almost every log line.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Level aliases slog's level type so call sites never import slog.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel maps a configuration string to a Level. Unknown strings
// fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one structured attribute on a log line.
type Field struct {
	Key   string
	Value any
}

// Field constructors.
func String(key, value string) Field      { return Field{Key: key, Value: value} }
func Int(key string, value int) Field     { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field   { return Field{Key: key, Value: value} }
func Any(key string, value any) Field     { return Field{Key: key, Value: value} }

// Err records an error under the conventional "error" key.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Helpers for the identifiers threaded through most engine log lines.
func MemberID(id string) Field      { return String("member_id", id) }
func RankName(name string) Field    { return String("rank_name", name) }
func AchievementID(id string) Field { return String("achievement_id", id) }
func Component(name string) Field   { return String("component", name) }

// Logger wraps slog with the engine's field vocabulary.
type Logger struct {
	sl *slog.Logger
}

// Options controls output, threshold and caller reporting.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
}

// DefaultOptions logs JSON at info to stdout.
func DefaultOptions() Options {
	return Options{
		Output:    os.Stdout,
		Level:     LevelInfo,
		AddCaller: true,
	}
}

// New builds a Logger over a slog JSON handler.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	handler := slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddCaller,
	})
	return &Logger{sl: slog.New(handler)}
}

// Default is shorthand for New(DefaultOptions()).
func Default() *Logger {
	return New(DefaultOptions())
}

// With returns a new Logger with the given fields attached to every line.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{sl: l.sl.With(attrs(fields)...)}
}

// log emits a record with the caller's program counter so AddSource
// reports the call site, not this wrapper.
func (l *Logger) log(level Level, msg string, fields ...Field) {
	ctx := context.Background()
	if !l.sl.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	rec := slog.NewRecord(time.Now(), level, msg, pcs[0])
	rec.Add(attrs(fields)...)
	_ = l.sl.Handler().Handle(ctx, rec)
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields...) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...Field) { l.log(LevelInfo, msg, fields...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...Field) { l.log(LevelWarn, msg, fields...) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields...) }

type ctxKey struct{}

// WithContext attaches the logger to ctx for downstream handlers.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext recovers the request logger, falling back to Default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}
