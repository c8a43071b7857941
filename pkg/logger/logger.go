package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel converts a level name into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level: %s", s)
}

// Component identifies the part of the engine a message comes from
type Component int

const (
	None Component = iota
	Reactor
	Settler
	Permit
	Oracle
	Keeper
	Health
)

var componentPrefixes = map[Component]string{
	None:    "",
	Reactor: "[REACTOR] ",
	Settler: "[SETTLER] ",
	Permit:  "[PERMIT]  ",
	Oracle:  "[ORACLE]  ",
	Keeper:  "[KEEPER]  ",
	Health:  "[HEALTH]  ",
}

var colors = map[Component]color.Attribute{
	None:    color.FgWhite,
	Reactor: color.FgHiGreen,
	Settler: color.FgHiBlue,
	Permit:  color.FgYellow,
	Oracle:  color.FgMagenta,
	Keeper:  color.FgCyan,
	Health:  color.FgGreen,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithComponent(c Component, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithComponent(c Component, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithComponent(c Component, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithComponent(c Component, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                             {}
func (l *EmptyLogger) InfoWithComponent(_ Component, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                            {}
func (l *EmptyLogger) ErrorWithComponent(_ Component, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                            {}
func (l *EmptyLogger) DebugWithComponent(_ Component, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                           {}
func (l *EmptyLogger) NoticeWithComponent(_ Component, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// formatMessage formats the log message with the appropriate log level, component prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, c Component, format string) string {
	prefix := componentPrefixes[c]
	if l.enableColoring {
		prefix = color.New(colors[c]).Sprint(prefix)
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + prefix + format
}

func (l *StdLogger) logf(level Level, c Component, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		log.Printf(l.formatMessage(level, c, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, None, format, args...)
}

func (l *StdLogger) InfoWithComponent(c Component, format string, args ...interface{}) {
	l.logf(InfoLevel, c, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, None, format, args...)
}

func (l *StdLogger) ErrorWithComponent(c Component, format string, args ...interface{}) {
	l.logf(ErrorLevel, c, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, None, format, args...)
}

func (l *StdLogger) DebugWithComponent(c Component, format string, args ...interface{}) {
	l.logf(DebugLevel, c, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, None, format, args...)
}

func (l *StdLogger) NoticeWithComponent(c Component, format string, args ...interface{}) {
	l.logf(NoticeLevel, c, format, args...)
}
