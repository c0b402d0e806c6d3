package log

import (
	"context"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/storyboard/internal/errors"
)

// Process-wide default, read by components constructed without a logger.
var (
	defaultMu      sync.RWMutex
	processDefault *Logger
)

// SetDefaultLogger installs the process-wide default. The CLI calls this once
// after loading configuration; everything else only reads it.
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	processDefault = l
	defaultMu.Unlock()
}

// DefaultLogger returns the process-wide default, creating one lazily from
// DefaultConfig when none has been installed yet.
func DefaultLogger() *Logger {
	defaultMu.RLock()
	l := processDefault
	defaultMu.RUnlock()
	if l != nil {
		return l
	}
	l = New(DefaultConfig())
	SetDefaultLogger(l)
	return l
}

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     config.Level.ToSlogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output.Writer(), opts)
	case FormatText:
		handler = slog.NewTextHandler(config.Output.Writer(), opts)
	default:
		handler = slog.NewJSONHandler(config.Output.Writer(), opts)
	}

	return &Logger{
		slog:   slog.New(handler),
		config: config,
	}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Development creates a logger with development configuration
func Development() *Logger {
	return New(DevelopmentConfig())
}

// Production creates a logger with production configuration
func Production() *Logger {
	return New(ProductionConfig())
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
	}
}

// WithGroup returns a new Logger with a group name that prefixes all attributes
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slog:   l.slog.WithGroup(name),
		config: l.config,
	}
}

// WithError adds error details to the logger
// If the error is a StoryboardError, it adds error_code and suggestions
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	if sbErr, ok := err.(*errors.StoryboardError); ok {
		args := []any{
			"error", sbErr.Message,
			"error_code", string(sbErr.Code),
		}

		if len(sbErr.Suggestions) > 0 {
			args = append(args, "suggestions", sbErr.Suggestions)
		}

		if sbErr.Cause != nil {
			args = append(args, "cause", sbErr.Cause.Error())
		}

		return l.With(args...)
	}

	return l.With("error", err.Error())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// DebugContext logs a debug message with context
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}

// LogError logs a StoryboardError with full details
func (l *Logger) LogError(err error) {
	if err == nil {
		return
	}

	if sbErr, ok := err.(*errors.StoryboardError); ok {
		args := []any{
			"error_code", string(sbErr.Code),
			"error_message", sbErr.Message,
		}

		if len(sbErr.Suggestions) > 0 {
			args = append(args, "suggestions", sbErr.Suggestions)
		}

		if sbErr.DocsURL != "" {
			args = append(args, "docs_url", sbErr.DocsURL)
		}

		if sbErr.Cause != nil {
			args = append(args, "cause", sbErr.Cause.Error())
		}

		l.Error("operation failed", args...)
	} else {
		l.Error("operation failed", "error", err.Error())
	}
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.ToSlogLevel())
}

// Handler returns the underlying slog.Handler
func (l *Logger) Handler() slog.Handler {
	return l.slog.Handler()
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}
