package logger

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

// sink is shared by a TestLogger and every child logger derived from it
type sink struct {
	mu       sync.Mutex
	messages []LogMessage
	buffer   bytes.Buffer
}

// TestLogger is a Logger that captures every message for assertions
type TestLogger struct {
	sink   *sink
	fields map[string]interface{}
	err    error
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &sink{}}
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &TestLogger{sink: l.sink, fields: merge(l.fields, fields), err: l.err}
}

func (l *TestLogger) WithError(err error) Logger {
	return &TestLogger{sink: l.sink, fields: l.fields, err: err}
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	all := merge(l.fields, fields)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.messages = append(l.sink.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  all,
		Error:   l.err,
	})

	fmt.Fprintf(&l.sink.buffer, "[%s] %s", level, msg)
	if len(all) > 0 {
		fmt.Fprintf(&l.sink.buffer, " fields=%v", all)
	}
	if l.err != nil {
		fmt.Fprintf(&l.sink.buffer, " error=%v", l.err)
	}
	l.sink.buffer.WriteByte('\n')
}

func merge(a, b map[string]interface{}) map[string]interface{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// GetMessages returns a copy of all captured messages
func (l *TestLogger) GetMessages() []LogMessage {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	messages := make([]LogMessage, len(l.sink.messages))
	copy(messages, l.sink.messages)
	return messages
}

// GetMessagesByLevel returns all messages of a specific level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var filtered []LogMessage
	for _, msg := range l.GetMessages() {
		if msg.Level == level {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// HasMessage checks if a message containing text was logged
func (l *TestLogger) HasMessage(text string) bool {
	for _, msg := range l.GetMessages() {
		if strings.Contains(msg.Message, text) {
			return true
		}
	}
	return false
}

// HasError checks if an error was logged
func (l *TestLogger) HasError() bool {
	return len(l.GetMessagesByLevel("ERROR")) > 0
}

// Clear clears all captured messages
func (l *TestLogger) Clear() {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.messages = nil
	l.sink.buffer.Reset()
}

// String returns all log messages as a string
func (l *TestLogger) String() string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	return l.sink.buffer.String()
}
