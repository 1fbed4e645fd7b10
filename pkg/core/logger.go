package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case level name used in log prefixes.
func (l Level) String() string {
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

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides leveled logging for the pool and the request server.
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that appends key=value pairs to every line
	WithFields(fields map[string]interface{}) Logger
}

// defaultLogger implements Logger using Go's standard log package.
// Error and warn go to errOut, info and debug to out.
type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	level       Level
	suffix      string
}

// NewDefaultLogger creates a logger writing info/debug to stdout and
// warn/error to stderr at LevelInfo.
func NewDefaultLogger() Logger {
	return NewLogger(os.Stdout, os.Stderr, LevelInfo)
}

// NewLogger creates a logger with explicit writers and threshold.
// Passing the same writer twice keeps all levels in one stream (handy in tests).
func NewLogger(out, errOut io.Writer, level Level) Logger {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = out
	}
	flags := log.LstdFlags | log.Lmicroseconds
	return &defaultLogger{
		errorLogger: log.New(errOut, "[ERROR] ", flags),
		warnLogger:  log.New(errOut, "[WARN] ", flags),
		infoLogger:  log.New(out, "[INFO] ", flags),
		debugLogger: log.New(out, "[DEBUG] ", flags),
		level:       level,
	}
}

// NopLogger discards everything.
func NopLogger() Logger {
	return NewLogger(io.Discard, io.Discard, LevelError+1)
}

func (l *defaultLogger) emit(level Level, target *log.Logger, msg string) {
	if level < l.level {
		return
	}
	_ = target.Output(3, msg+l.suffix)
}

// Error logs an error message
func (l *defaultLogger) Error(args ...interface{}) {
	l.emit(LevelError, l.errorLogger, fmt.Sprint(args...))
}

// Errorf logs a formatted error message
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.emit(LevelError, l.errorLogger, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *defaultLogger) Warn(args ...interface{}) {
	l.emit(LevelWarn, l.warnLogger, fmt.Sprint(args...))
}

// Warnf logs a formatted warning message
func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, l.warnLogger, fmt.Sprintf(format, args...))
}

// Info logs an informational message
func (l *defaultLogger) Info(args ...interface{}) {
	l.emit(LevelInfo, l.infoLogger, fmt.Sprint(args...))
}

// Infof logs a formatted informational message
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, l.infoLogger, fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *defaultLogger) Debug(args ...interface{}) {
	l.emit(LevelDebug, l.debugLogger, fmt.Sprint(args...))
}

// Debugf logs a formatted debug message
func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.emit(LevelDebug, l.debugLogger, fmt.Sprintf(format, args...))
}

// WithFields returns a copy of the logger whose lines end with the given
// fields, sorted by key so output is stable.
func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(l.suffix)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}

	cp := *l
	cp.suffix = b.String()
	return &cp
}
