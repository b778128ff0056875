package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format represents the log file format
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds configuration for a Logger
type Config struct {
	// Level is the minimum log level
	Level Level
	// Console enables human-readable output on ConsoleWriter (stderr when nil)
	Console       bool
	ConsoleWriter io.Writer
	// Path enables file output; empty disables it
	Path string
	// Format is the file format (json or text)
	Format Format
	// MaxSizeMB is the size in megabytes before the file is rotated
	MaxSizeMB int
	// MaxBackups is the maximum number of rotated files to keep
	MaxBackups int
	// MaxAgeDays removes rotated files older than this; 0 keeps them
	MaxAgeDays int
}

// SlogLogger implements Logger on top of log/slog
type SlogLogger struct {
	logger *slog.Logger
	closer io.Closer
}

// New creates a logger writing to the console, a rotating file, or both.
// With neither output configured everything is discarded.
func New(config Config) (*SlogLogger, error) {
	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}
	var handlers []slog.Handler
	var closer io.Closer

	if config.Console {
		w := config.ConsoleWriter
		if w == nil {
			w = os.Stderr
		}
		handlers = append(handlers, tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(w),
		}))
	}

	if config.Path != "" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		maxSize := config.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		rotator := &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    maxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
		}
		closer = rotator

		if config.Format == FormatJSON {
			handlers = append(handlers, slog.NewJSONHandler(rotator, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(rotator, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = newMultiHandler(handlers...)
	}

	return &SlogLogger{logger: slog.New(handler), closer: closer}, nil
}

// Debug logs a debug message
func (l *SlogLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelDebug, msg, nil, fields)
}

// Info logs an info message
func (l *SlogLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelInfo, msg, nil, fields)
}

// Warn logs a warning message
func (l *SlogLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelWarn, msg, nil, fields)
}

// Error logs an error message
func (l *SlogLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	l.log(ctx, slog.LevelError, msg, err, fields)
}

// WithFields returns a logger with additional fields
func (l *SlogLogger) WithFields(fields Fields) Logger {
	return &SlogLogger{
		logger: l.logger.With(attrs(nil, fields)...),
		closer: l.closer,
	}
}

// Close flushes and closes the log file, if any
func (l *SlogLogger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, err error, fields Fields) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, msg, attrs(err, fields)...)
}

// attrs converts fields into slog arguments in a stable key order
func attrs(err error, fields Fields) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)+1)
	if err != nil {
		args = append(args, tint.Err(err))
	}
	for _, k := range keys {
		args = append(args, slog.Any(k, fields[k]))
	}
	return args
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
