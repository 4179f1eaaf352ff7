// Package logging provides structured logging for tachikoma.
// It wraps log/slog with component loggers and redacts session secrets
// (access tokens, refresh tokens, checksums, passwords) before they reach any sink.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// LogLevel represents the severity of log messages
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string ("debug", "info", ...) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides structured logging with context support
type Logger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	closer    io.Closer
}

// Config represents logging configuration
type Config struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", "both" or a file path
	File      string // file used when Output is "both"
	Component string
}

// DefaultConfig returns the default logging configuration: text to stdout and tachikoma.log.
func DefaultConfig() Config {
	return Config{
		Level:     InfoLevel,
		Format:    "text",
		Output:    "both",
		File:      "tachikoma.log",
		Component: "tachikoma",
	}
}

// redactedKeys are attribute keys whose values never reach a log sink, besides
// anything ending in "token" or mentioning a password.
var redactedKeys = []string{"checksum", "auth", "credentials"}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, "token") || strings.Contains(k, "password") {
		return true
	}
	return lo.Contains(redactedKeys, k)
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	output, closer, err := openOutput(config)
	if err != nil {
		return nil, err
	}
	return newLogger(output, closer, config), nil
}

// NewWithWriter builds a logger writing to w. Tests use it to capture output.
func NewWithWriter(w io.Writer, config Config) *Logger {
	return newLogger(w, nil, config)
}

func newLogger(output io.Writer, closer io.Closer, config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level: slogLevel(config.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if isSecretKey(a.Key) {
				return slog.String(a.Key, "[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		logger:    slog.New(handler),
		level:     config.Level,
		component: config.Component,
		closer:    closer,
	}
}

func openOutput(config Config) (io.Writer, io.Closer, error) {
	switch config.Output {
	case "stdout", "":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "both":
		file, err := openFile(config.File)
		if err != nil {
			return nil, nil, err
		}
		return io.MultiWriter(file, os.Stdout), file, nil
	default:
		file, err := openFile(config.Output)
		if err != nil {
			return nil, nil, err
		}
		return file, file, nil
	}
}

func openFile(path string) (*os.File, error) {
	if path == "" {
		path = "tachikoma.log"
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, nil
}

// slogLevel converts our LogLevel to slog.Level
func slogLevel(level LogLevel) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithComponent creates a new logger for a specific component
func (l *Logger) WithComponent(component string) *Logger {
	return l.derive(l.logger.With(slog.String("component", component)), component)
}

// WithPlayer tags every line with the player's display name.
func (l *Logger) WithPlayer(name string) *Logger {
	return l.derive(l.logger.With(slog.String("player", name)), l.component)
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.logger.With(slog.Any(key, value)), l.component)
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.derive(l.logger.With(args...), l.component)
}

func (l *Logger) derive(s *slog.Logger, component string) *Logger {
	return &Logger{
		logger:    s,
		level:     l.level,
		component: component,
		closer:    l.closer,
	}
}

// Debug logs a debug level message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DebugLevel {
		l.logger.Debug(msg, args...)
	}
}

// Info logs an info level message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= InfoLevel {
		l.logger.Info(msg, args...)
	}
}

// Warn logs a warning level message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WarnLevel {
		l.logger.Warn(msg, args...)
	}
}

// Error logs an error level message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.level <= ErrorLevel {
		l.logger.Error(msg, args...)
	}
}

// LogOperation logs the start and end of an operation with duration
func (l *Logger) LogOperation(operation string, fn func() error) error {
	start := time.Now()
	opLogger := l.WithField("operation", operation)

	opLogger.Debug("Operation starting")

	err := fn()
	duration := time.Since(start)

	if err != nil {
		opLogger.Warn("Operation failed",
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return err
	}

	opLogger.Info("Operation completed",
		slog.Duration("duration", duration))
	return nil
}

// LogHTTPRequest logs HTTP request details. The URL must already be redacted.
func (l *Logger) LogHTTPRequest(method string, url string, statusCode int, attempt int, duration time.Duration) {
	l.Debug("HTTP request completed",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status_code", statusCode),
		slog.Int("attempt", attempt),
		slog.Duration("duration", duration))
}

// LogStateChange logs a session state transition
func (l *Logger) LogStateChange(from string, to string, reason string) {
	l.Debug("Session state change",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("reason", reason))
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger initializes the global logger with the specified configuration
func InitGlobalLogger(config Config) error {
	logger, err := NewLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize global logger: %w", err)
	}
	SetGlobalLogger(logger)
	return nil
}

// SetGlobalLogger replaces the global logger.
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		cfg := DefaultConfig()
		cfg.Output = "stderr"
		globalLogger, _ = NewLogger(cfg)
	}
	return globalLogger
}

// Component-specific logger creators
func GetSessionLogger() *Logger {
	return GetGlobalLogger().WithComponent("session")
}

func GetTransportLogger() *Logger {
	return GetGlobalLogger().WithComponent("transport")
}

func GetConfigLogger() *Logger {
	return GetGlobalLogger().WithComponent("config")
}

func GetGameLogger() *Logger {
	return GetGlobalLogger().WithComponent("game")
}

func GetCLILogger() *Logger {
	return GetGlobalLogger().WithComponent("cli")
}
