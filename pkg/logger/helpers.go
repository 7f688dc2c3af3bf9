package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a finished feed or media request
func LogRequest(l Logger, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.ErrorWithFields("HTTP request server error", fields)
	}
}

// LogDownload logs the outcome of a single media file
func LogDownload(l Logger, shortcode, filename string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"shortcode": shortcode,
		"file":      filename,
	})

	if err != nil {
		entry.WithError(err).Error("Download failed")
		return
	}
	entry.Debug("Download completed")
}

// LogPage logs a processed feed page
func LogPage(l Logger, account string, page int, cursor string, posts int) {
	l.InfoWithFields("Processed page", map[string]interface{}{
		"account": account,
		"page":    page,
		"cursor":  cursor,
		"posts":   posts,
	})
}

// PrintfLogger adapts a Logger to printf-style consumers such as goose
type PrintfLogger struct {
	l Logger
}

// NewPrintfLogger wraps l
func NewPrintfLogger(l Logger) *PrintfLogger {
	return &PrintfLogger{l: l}
}

// Printf logs at debug level
func (p *PrintfLogger) Printf(format string, v ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, v...))
}

// Fatalf logs at error level and exits like log.Fatalf
func (p *PrintfLogger) Fatalf(format string, v ...interface{}) {
	p.l.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
