// Package logging provides a small leveled logger on top of the standard log package.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case name used in log lines.
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
		return "INFO"
	}
}

// ParseLevel converts a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes leveled, component-prefixed lines through a *log.Logger.
// A Logger is safe for concurrent use. The zero value is not usable; call New.
type Logger struct {
	base      *log.Logger
	level     *levelHolder
	component string
	closer    io.Closer
}

type levelHolder struct {
	mu    sync.RWMutex
	level Level
}

// New creates a Logger writing to w at the given minimum level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		base:  log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		level: &levelHolder{level: level},
	}
}

// NewFile creates a Logger that appends to path in addition to stderr.
func NewFile(path string, level Level) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := New(io.MultiWriter(os.Stderr, f), level)
	l.closer = f
	return l, nil
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// With returns a Logger sharing output and level but tagged with component.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		base:      l.base,
		level:     l.level,
		component: component,
	}
}

// SetLevel changes the minimum level for this logger and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.mu.Lock()
	l.level.level = level
	l.level.mu.Unlock()
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.level.mu.RLock()
	defer l.level.mu.RUnlock()
	return level >= l.level.level
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		l.base.Printf("%-5s %s: %s", level, l.component, msg)
		return
	}
	l.base.Printf("%-5s %s", level, msg)
}
