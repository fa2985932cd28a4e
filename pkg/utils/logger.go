package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is the debug log level.
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level.
	LevelInfo
	// LevelWarn is the warning log level.
	LevelWarn
	// LevelError is the error log level.
	LevelError
)

// String returns the string representation of LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogFormat selects how DefaultLogger renders a line.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Logger is the interface for logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// DefaultLogger writes leveled lines to an io.Writer.
type DefaultLogger struct {
	mu     *sync.Mutex
	level  LogLevel
	format LogFormat
	output io.Writer
	fields map[string]interface{}
	clock  Clock
}

// NewDefaultLogger creates a new text DefaultLogger.
func NewDefaultLogger(level LogLevel, output io.Writer) *DefaultLogger {
	return &DefaultLogger{
		mu:     &sync.Mutex{},
		level:  level,
		format: FormatText,
		output: output,
		fields: make(map[string]interface{}),
		clock:  NewRealClock(),
	}
}

// NewFileLogger creates a logger that appends to a file.
func NewFileLogger(level LogLevel, logPath string) (*DefaultLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return NewDefaultLogger(level, file), nil
}

// SetLevel sets the log level.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetFormat switches between text and json rendering.
func (l *DefaultLogger) SetFormat(format LogFormat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
}

// SetClock replaces the timestamp source.
func (l *DefaultLogger) SetClock(clock Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Debug logs a debug message.
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// WithField creates a new logger with the given field.
func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields creates a new logger with the given fields. The returned logger
// shares the output and its lock with the parent.
func (l *DefaultLogger) WithFields(fields map[string]interface{}) Logger {
	child := &DefaultLogger{
		mu:     l.mu,
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
		clock:  l.clock,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

func (l *DefaultLogger) log(level LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := l.clock.Now().Format("2006-01-02 15:04:05.000")
	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	var line string
	if l.format == FormatJSON {
		entry := make(map[string]interface{}, len(l.fields)+3)
		for k, v := range l.fields {
			entry[k] = v
		}
		entry["ts"] = timestamp
		entry["level"] = level.String()
		entry["msg"] = formattedMsg
		data, err := json.Marshal(entry)
		if err != nil {
			data = []byte(fmt.Sprintf(`{"level":"ERROR","msg":%q}`, err.Error()))
		}
		line = string(data) + "\n"
	} else {
		line = fmt.Sprintf("[%s] [%s]%s %s\n", timestamp, level.String(), l.fieldString(), formattedMsg)
	}

	_, _ = io.WriteString(l.output, line)
}

// fieldString renders fields in key order so output is stable.
func (l *DefaultLogger) fieldString() string {
	if len(l.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
	}
	return sb.String()
}

// ParseLogLevel parses a string to LogLevel.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseLogFormat parses a string to LogFormat, defaulting to text.
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(format, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// NullLogger is a logger that discards all log messages.
type NullLogger struct{}

// Debug does nothing.
func (l *NullLogger) Debug(msg string, args ...interface{}) {}

// Info does nothing.
func (l *NullLogger) Info(msg string, args ...interface{}) {}

// Warn does nothing.
func (l *NullLogger) Warn(msg string, args ...interface{}) {}

// Error does nothing.
func (l *NullLogger) Error(msg string, args ...interface{}) {}

// WithField returns the same NullLogger.
func (l *NullLogger) WithField(key string, value interface{}) Logger {
	return l
}

// WithFields returns the same NullLogger.
func (l *NullLogger) WithFields(fields map[string]interface{}) Logger {
	return l
}

// OrNull returns logger, or a NullLogger when logger is nil.
func OrNull(logger Logger) Logger {
	if logger == nil {
		return &NullLogger{}
	}
	return logger
}
