package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"instadb/pkg/config"
)

// Logger defines the interface for logging operations
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})

	// GetZerolog returns the underlying zerolog instance
	GetZerolog() *zerolog.Logger
}

// zerologLogger implements the Logger interface using zerolog
type zerologLogger struct {
	logger *zerolog.Logger
	fields map[string]interface{}
}

// New creates a Logger writing to stderr, and additionally to cfg.File when set.
// Progress output owns stdout, so log lines never interleave with it.
func New(cfg *config.LoggingConfig) (Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a Logger whose console output goes to w
func NewWithWriter(cfg *config.LoggingConfig, w io.Writer) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = consoleWriter(w)
	if cfg.File != "" {
		file, err := openLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to setup file output: %w", err)
		}
		output = zerolog.MultiLevelWriter(output, file)
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("app", "instadb").
		Logger()

	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}, nil
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			if i == nil {
				return ""
			}
			switch strings.ToUpper(fmt.Sprintf("%s", i)) {
			case "DEBUG":
				return "\033[37mDEBG\033[0m"
			case "INFO":
				return "\033[32mINFO\033[0m"
			case "WARN":
				return "\033[33mWARN\033[0m"
			case "ERROR":
				return "\033[31mERRO\033[0m"
			default:
				return strings.ToUpper(fmt.Sprintf("%s", i))
			}
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("| %s", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[36m%s\033[0m:", i)
		},
		FieldsExclude: []string{"app"},
	}
}

func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// parseLogLevel converts string log level to zerolog.Level
func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *zerologLogger) Debug(msg string) { l.addFields(l.logger.Debug()).Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.addFields(l.logger.Info()).Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.addFields(l.logger.Warn()).Msg(msg) }
func (l *zerologLogger) Error(msg string) { l.addFields(l.logger.Error()).Msg(msg) }

// WithField returns a child logger carrying key
func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child logger carrying all of fields
func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &zerologLogger{logger: l.logger, fields: merged}
}

// WithError adds an error field to the logger
func (l *zerologLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *zerologLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Debug(), fields).Msg(msg)
}

func (l *zerologLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Info(), fields).Msg(msg)
}

func (l *zerologLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Warn(), fields).Msg(msg)
}

func (l *zerologLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Error(), fields).Msg(msg)
}

func (l *zerologLogger) GetZerolog() *zerolog.Logger {
	return l.logger
}

func (l *zerologLogger) addFields(event *zerolog.Event) *zerolog.Event {
	for key, value := range l.fields {
		event = addFieldToEvent(event, key, value)
	}
	return event
}

func (l *zerologLogger) addFieldsFromMap(event *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	event = l.addFields(event)
	for key, value := range fields {
		event = addFieldToEvent(event, key, value)
	}
	return event
}

// addFieldToEvent adds a single field to a zerolog event with type checking
func addFieldToEvent(event *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return event.Str(key, v)
	case int:
		return event.Int(key, v)
	case int64:
		return event.Int64(key, v)
	case float64:
		return event.Float64(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Time:
		return event.Time(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case error:
		return event.AnErr(key, v)
	case []string:
		return event.Strs(key, v)
	default:
		return event.Interface(key, v)
	}
}

var (
	globalMu     sync.Mutex
	globalLogger Logger
)

// Initialize sets up the global logger
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()

	log.Logger = *l.GetZerolog()
	return nil
}

// GetLogger returns the global logger, creating an info-level one on first use
func GetLogger() Logger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}

// WithField adds a field to the global logger
func WithField(key string, value interface{}) Logger {
	return GetLogger().WithField(key, value)
}

// WithError adds an error to the global logger
func WithError(err error) Logger {
	return GetLogger().WithError(err)
}
