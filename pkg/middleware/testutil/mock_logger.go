// Package testutil provides helpers shared by middleware tests.
package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/crudkit/pkg/observability/logger"
)

// MockLogger captures log entries for assertions. It is safe for
// concurrent use.
type MockLogger struct {
	mu     *sync.Mutex
	fields []any
	logs   *[]LogEntry
}

// LogEntry is one captured log call.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{mu: &sync.Mutex{}, logs: &[]LogEntry{}}
}

func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.record("info", msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.record("warn", msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns a logger sharing the capture buffer with extra fields.
func (m *MockLogger) With(args ...any) logger.Logger {
	return &MockLogger{mu: m.mu, fields: append(append([]any{}, m.fields...), args...), logs: m.logs}
}

// WithContext adds the request ID found in ctx.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return m.With("request_id", id)
	}
	return m
}

// Entries returns a copy of the captured entries.
func (m *MockLogger) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry{}, *m.logs...)
}

func (m *MockLogger) record(level, msg string, args []any) {
	fields := make(map[string]any)
	all := append(append([]any{}, m.fields...), args...)
	for i := 0; i+1 < len(all); i += 2 {
		if key, ok := all[i].(string); ok {
			fields[key] = all[i+1]
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.logs = append(*m.logs, LogEntry{Level: level, Msg: msg, Fields: fields})
}
