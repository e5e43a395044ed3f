// Package logging adapts charmbracelet/log to the domain Logger interface.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

// Logger implements interfaces.Logger on top of charmbracelet/log
type Logger struct {
	logger *log.Logger
}

// New creates a logger writing to w at the given level (debug, info, warn, error).
// A nil writer logs to stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{
		Prefix: "feedstock",
		Level:  ParseLevel(level),
	})
	return &Logger{logger: logger}
}

// ParseLevel maps a level name to a log level, defaulting to info
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// SetLevel changes the minimum level that is written
func (l *Logger) SetLevel(level string) {
	l.logger.SetLevel(ParseLevel(level))
}

// Debug logs debug-level messages
func (l *Logger) Debug(msg string, fields ...interfaces.Field) {
	l.logger.Debug(msg, keyvals(fields)...)
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields ...interfaces.Field) {
	l.logger.Info(msg, keyvals(fields)...)
}

// Warn logs warning messages
func (l *Logger) Warn(msg string, fields ...interfaces.Field) {
	l.logger.Warn(msg, keyvals(fields)...)
}

// Error logs error messages
func (l *Logger) Error(msg string, fields ...interfaces.Field) {
	l.logger.Error(msg, keyvals(fields)...)
}

func keyvals(fields []interfaces.Field) []any {
	if len(fields) == 0 {
		return nil
	}
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}
