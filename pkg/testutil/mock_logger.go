package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

// MockLogger is a test logger that captures log entries for assertion in tests.
type MockLogger struct {
	mu     sync.Mutex
	Logs   []LogEntry
	fields map[string]interface{}
}

// LogEntry represents a single log entry captured by MockLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }

func (m *MockLogger) Info(msg string, args ...any) { m.record("info", msg, args) }

func (m *MockLogger) Warn(msg string, args ...any) { m.record("warn", msg, args) }

func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns the same logger; the fields are merged into later entries.
func (m *MockLogger) With(args ...any) logger.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fields == nil {
		m.fields = make(map[string]interface{})
	}
	for k, v := range argsToMap(args) {
		m.fields[k] = v
	}
	return m
}

// WithContext returns the same logger.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	return m
}

// Find returns the first captured entry with the given message.
func (m *MockLogger) Find(msg string) (LogEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.Logs {
		if entry.Msg == msg {
			return entry, true
		}
	}
	return LogEntry{}, false
}

// Entries returns a copy of the captured entries.
func (m *MockLogger) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LogEntry, len(m.Logs))
	copy(out, m.Logs)
	return out
}

func (m *MockLogger) record(level, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields := argsToMap(args)
	for k, v := range m.fields {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	m.Logs = append(m.Logs, LogEntry{Level: level, Msg: msg, Fields: fields})
}

func argsToMap(args []any) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
