// Package interfaces defines core domain contracts.
//
//nolint:revive // Package name 'interfaces' is intentional for domain layer
package interfaces

import (
	"errors"
	"sort"

	"go.trai.ch/zerr"
)

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs debug-level messages
	Debug(msg string, fields ...Field)

	// Info logs informational messages
	Info(msg string, fields ...Field)

	// Warn logs warning messages
	Warn(msg string, fields ...Field)

	// Error logs error messages
	Error(msg string, fields ...Field)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value any
}

// F creates a new Field (convenience function)
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// ErrorFields returns the metadata attached to err and the errors it wraps
// as log fields, sorted by key. The outermost value wins for a repeated key.
func ErrorFields(err error) []Field {
	seen := make(map[string]bool)
	var fields []Field
	for ; err != nil; err = errors.Unwrap(err) {
		z, ok := err.(*zerr.Error)
		if !ok {
			continue
		}
		for key, value := range z.Metadata() {
			if seen[key] {
				continue
			}
			seen[key] = true
			fields = append(fields, F(key, value))
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}

// NoOpLogger is a logger that does nothing (useful for tests)
type NoOpLogger struct{}

// Debug does nothing (no-op implementation)
func (n *NoOpLogger) Debug(_ string, _ ...Field) {}

// Info does nothing (no-op implementation)
func (n *NoOpLogger) Info(_ string, _ ...Field) {}

// Warn does nothing (no-op implementation)
func (n *NoOpLogger) Warn(_ string, _ ...Field) {}

// Error does nothing (no-op implementation)
func (n *NoOpLogger) Error(_ string, _ ...Field) {}
