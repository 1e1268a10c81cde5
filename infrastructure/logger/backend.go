// Package logger is the node's subsystem-backend logging facility,
// grounded on daglabs-btcd/logger/logger.go: a single Backend writes
// through to both stdout and a rotating log file, and every subsystem
// (consensus, round, acceptance, snapshot, rollback, ...) gets its own
// named *Logger drawn from that one backend so log lines can be filtered
// and leveled per subsystem without touching call sites elsewhere.
package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level is a logging severity, ordered from most to least verbose.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DBG"
	case LevelInfo:
		return "INF"
	case LevelWarn:
		return "WRN"
	case LevelError:
		return "ERR"
	case LevelCritical:
		return "CRT"
	default:
		return "OFF"
	}
}

// Backend is the shared sink every subsystem Logger writes through.
type Backend struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewBackend creates a Backend that writes to w (typically a multi-writer
// of stdout and a log-rotator's write end, mirroring the teacher's
// logWriter/errLogWriter split).
func NewBackend(w io.Writer) *Backend {
	return &Backend{writer: w}
}

// Logger returns a named subsystem logger drawing from this backend.
func (b *Backend) Logger(subsystem string) *Logger {
	return &Logger{backend: b, subsystem: subsystem, level: LevelInfo}
}

func (b *Backend) write(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprint(b.writer, line)
}

// Close releases any resources held by the backend. Kept for symmetry
// with the teacher's logs.Backend.Close(), used from panic/shutdown
// handling.
func (b *Backend) Close() error {
	if closer, ok := b.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Logger is one subsystem's leveled log sink.
type Logger struct {
	backend   *Backend
	subsystem string
	level     Level
}

// SetLevel changes the minimum level this logger emits.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("%s [%s] %s %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05.000"), level, l.subsystem, fmt.Sprintf(format, args...))
	l.backend.write(line)
}

func (l *Logger) Debugf(format string, args ...interface{})    { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})     { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})     { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})    { l.logf(LevelError, format, args...) }
func (l *Logger) Criticalf(format string, args ...interface{}) { l.logf(LevelCritical, format, args...) }

// Backend returns the logger's backend, used by panic handling to flush
// and close on exit.
func (l *Logger) Backend() *Backend { return l.backend }

// discardBackend is a Backend that drops everything; Discard hands out
// loggers drawing from it to tests and to components that weren't given an
// explicit logger.
var discardBackend = NewBackend(io.Discard)

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return discardBackend.Logger("DISCARD")
}
