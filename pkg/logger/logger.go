// Package logger provides a small structured logging interface over slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	callerSkipFrames  = 3 // runtime.Caller -> getCaller -> log -> level method -> caller
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 3
	defaultMaxAgeDays = 14
)

// Logger defines the logging interface.
type Logger interface {
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
	Value any
}

// Field constructors.
func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field              { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }
func Any(key string, val any) Field                { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

type slogLogger struct {
	Logger *slog.Logger
}

func (l *slogLogger) Named(name string) Logger {
	return &slogLogger{Logger: l.Logger.With(slog.String("logger", name))}
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	fields = append(fields, String("source", getCaller()))
	l.Logger.LogAttrs(ctx, level, msg, convertFields(fields)...)
}

func (l *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

func (l *slogLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
	_ = Sync()
	os.Exit(1)
}

func convertFields(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}

var (
	mu       sync.Mutex
	global   Logger
	levelVar slog.LevelVar
	rotator  *lumberjack.Logger
)

// Option configures InitWithOptions.
type Option func(*options)

type options struct {
	out        io.Writer
	file       string
	maxSizeMB  int
	maxBackups int
	json       bool
}

// WithOutput replaces stdout as the primary sink.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithFile additionally writes every record to a size-rotated file.
func WithFile(path string, maxSizeMB int) Option {
	return func(o *options) {
		o.file = strings.TrimSpace(path)
		if maxSizeMB > 0 {
			o.maxSizeMB = maxSizeMB
		}
	}
}

// WithJSON switches the handler to JSON output.
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// Init initializes the global logger writing text to stdout.
func Init() error {
	return InitWithOptions()
}

// InitWithOptions initializes the global logger.
func InitWithOptions(opts ...Option) error {
	o := &options{out: os.Stdout, maxSizeMB: defaultMaxSizeMB, maxBackups: defaultMaxBackups}
	for _, opt := range opts {
		opt(o)
	}

	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}

	w := o.out
	if o.file != "" {
		if err := os.MkdirAll(filepath.Dir(o.file), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		rotator = &lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			MaxAge:     defaultMaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(o.out, rotator)
	}

	levelVar.Set(slog.LevelInfo)
	hopts := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler
	if o.json {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	global = &slogLogger{Logger: slog.New(h)}
	return nil
}

// getCaller returns the caller location as a path relative to the working directory.
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

// Get returns the global logger.
func Get() Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		panic("logger not initialized: call logger.Init first")
	}
	return global
}

// Named creates a named logger.
func Named(name string) Logger {
	return Get().Named(name)
}

// Sync closes the rotating file, if any. slog itself does not buffer.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	if err := rotator.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// SetLevel updates the level of the global handler.
func SetLevel(level slog.Level) { levelVar.Set(level) }

// SetLevelString parses and sets the logging level.
// Accepts debug, info, warn/warning and error (case-insensitive).
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(slog.LevelDebug)
	case "", "info":
		SetLevel(slog.LevelInfo)
	case "warn", "warning":
		SetLevel(slog.LevelWarn)
	case "error":
		SetLevel(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}
