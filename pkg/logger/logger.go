// Package logger provides a simple, clean logging interface.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Constants for logging operations.
const (
	callerSkipFrames = 3 // getCaller -> write -> logging method -> actual caller
)

// Logger defines the logging interface.
type Logger interface {
	// Context-aware variants
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field        { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

// zeroLogger implements Logger on top of zerolog.
type zeroLogger struct {
	z zerolog.Logger
}

func (l *zeroLogger) Named(name string) Logger {
	return &zeroLogger{z: l.z.With().Str("component", name).Logger()}
}

func (l *zeroLogger) Info(ctx context.Context, msg string, fields ...Field) {
	write(ctx, l.z.Info(), msg, fields)
}

func (l *zeroLogger) Error(ctx context.Context, msg string, fields ...Field) {
	write(ctx, l.z.Error(), msg, fields)
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	write(ctx, l.z.Debug(), msg, fields)
}

func (l *zeroLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	write(ctx, l.z.Warn(), msg, fields)
}

// Fatal logs at fatal level; zerolog exits the process after the event is written.
func (l *zeroLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	write(ctx, l.z.Fatal(), msg, fields)
}

// write attaches fields to the event and emits it. A nil event means the
// level is disabled.
func write(ctx context.Context, e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	if ctx != nil {
		e = e.Ctx(ctx)
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			e = e.AnErr(f.Key, v)
		case string:
			e = e.Str(f.Key, v)
		case int:
			e = e.Int(f.Key, v)
		case float64:
			e = e.Float64(f.Key, v)
		case time.Duration:
			e = e.Dur(f.Key, v)
		default:
			e = e.Interface(f.Key, v)
		}
	}
	e.Str("source", getCaller()).Msg(msg)
}

// Options controls how Init builds the global logger.
type Options struct {
	// Writer receives log output. Defaults to os.Stdout.
	Writer io.Writer
	// Format is "json" (default) or "console".
	Format string
}

var (
	mu     sync.RWMutex
	global Logger
)

// Init initializes the global logger with JSON output on stdout.
func Init() error {
	return InitWithOptions(Options{})
}

// InitWithOptions initializes the global logger with explicit output settings.
func InitWithOptions(opts Options) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
	case "console", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return fmt.Errorf("unknown log format: %s", opts.Format)
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	// Default to info; can be changed with SetLevel*/SetLevelString.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	mu.Lock()
	global = &zeroLogger{z: zerolog.New(w).With().Timestamp().Logger()}
	mu.Unlock()
	return nil
}

// New returns a standalone logger writing to w. It does not touch the global logger.
func New(w io.Writer) Logger {
	return &zeroLogger{z: zerolog.New(w).With().Timestamp().Logger()}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zeroLogger{z: zerolog.Nop()}
}

// getCaller returns the caller location in format relative/path/file.go:line (IDE-friendly).
func getCaller() string {
	_, file, line, ok := runtime.Caller(callerSkipFrames)
	if !ok {
		return "unknown:0"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	relPath, err := filepath.Rel(cwd, file)
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	return fmt.Sprintf("%s:%d", relPath, line)
}

// Get returns the global logger, initializing a stdout JSON logger on first use.
func Get() Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init()
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Named creates a named logger.
func Named(name string) Logger {
	return Get().Named(name)
}

// Sync flushes buffered log entries.
func Sync() error {
	// zerolog writes synchronously; nothing to flush
	return nil
}

// SetLevel updates the global zerolog level.
func SetLevel(level zerolog.Level) { zerolog.SetGlobalLevel(level) }

// SetLevelString parses and sets the logging level.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(zerolog.DebugLevel)
	case "", "info":
		SetLevel(zerolog.InfoLevel)
	case "warn", "warning":
		SetLevel(zerolog.WarnLevel)
	case "error":
		SetLevel(zerolog.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}
