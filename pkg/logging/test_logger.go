package logging

import (
	"fmt"
	"sync"
)

// TestLogger collects log messages in memory for assertions in tests.
type TestLogger struct {
	mu       sync.Mutex
	module   string
	Messages []string
}

// NewTestLogger creates a new TestLogger
func NewTestLogger() *TestLogger {
	return &TestLogger{module: "test"}
}

func (l *TestLogger) record(level Level, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("[%s] %s: %s", l.module, level.String(), msg)
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	l.Messages = append(l.Messages, line)
}

// Debug records a debug message
func (l *TestLogger) Debug(msg string, args ...interface{}) { l.record(LevelDebug, msg, args...) }

// Info records an info message
func (l *TestLogger) Info(msg string, args ...interface{}) { l.record(LevelInfo, msg, args...) }

// Warn records a warning message
func (l *TestLogger) Warn(msg string, args ...interface{}) { l.record(LevelWarn, msg, args...) }

// Error records an error message
func (l *TestLogger) Error(msg string, args ...interface{}) { l.record(LevelError, msg, args...) }

// Fatal records a fatal message without exiting
func (l *TestLogger) Fatal(msg string, args ...interface{}) { l.record(LevelFatal, msg, args...) }

// WithModule returns the same collector under a new module name
func (l *TestLogger) WithModule(module string) Logger {
	return &TestLogger{module: module}
}
