package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/cerberus-go/internal/logging"
)

// TestLogger captures log output for validation in tests.
//
// It hands out a real *logging.Logger that writes into an in-memory buffer,
// so tests can check both the messages produced and that tokens never reach
// the log.
//
// Example usage:
//
//	logger := NewTestLogger(t, true)
//	client, _ := cerberus.NewClient(url, provider, cerberus.WithLogger(logger.Logger()))
//	...
//	logger.AssertRedacted(t, token)
type TestLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *logging.Logger
}

// NewTestLogger creates a TestLogger. Debug messages are captured only when
// debug is true.
func NewTestLogger(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	l := &TestLogger{}
	l.logger = logging.NewWithWriter(lockedWriter{l}, debug)
	return l
}

// Logger returns the logger to hand to the code under test.
func (l *TestLogger) Logger() *logging.Logger {
	return l.logger
}

// GetOutput returns everything logged so far.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.String()
}

// Lines returns the non-empty log lines.
func (l *TestLogger) Lines() []string {
	var lines []string
	for _, line := range strings.Split(l.GetOutput(), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does not contain substr.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertRedacted asserts that secret never appears in the log output.
func (l *TestLogger) AssertRedacted(t *testing.T, secret string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), secret,
		"Secret value %q should be redacted, but appears in logs", secret)
}

type lockedWriter struct{ l *TestLogger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.buffer.Write(p)
}
