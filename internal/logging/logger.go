// Package logging provides the client's leveled logger and secret redaction.
//
// Logger keeps a printf-style API for call sites and emits through a
// logr.Logger, so applications embedding the client can route its output into
// their own logging backend with FromLogr.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Logger provides structured logging with redaction support
type Logger struct {
	sink logr.Logger
}

// New creates a logger writing to stderr. Debug messages are emitted only
// when debug is true.
func New(debug bool) *Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter creates a logger writing one line per message to w.
func NewWithWriter(w io.Writer, debug bool) *Logger {
	verbosity := 0
	if debug {
		verbosity = 1
	}
	sink := funcr.New(func(prefix, args string) {
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		_, _ = fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
	return &Logger{sink: sink.WithName("cerberus")}
}

// FromLogr adapts an application supplied logr.Logger.
func FromLogr(l logr.Logger) *Logger {
	return &Logger{sink: l}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{sink: logr.Discard()}
}

// WithName returns a logger whose messages carry an additional name segment.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{sink: l.sink.WithName(name)}
}

// Logr exposes the underlying logr.Logger.
func (l *Logger) Logr() logr.Logger {
	return l.sink
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sink.Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sink.Info(fmt.Sprintf(format, args...), "severity", "warning")
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sink.Error(nil, fmt.Sprintf(format, args...))
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sink.V(1).Info(fmt.Sprintf(format, args...))
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
