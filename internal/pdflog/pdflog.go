// Package pdflog is a minimal leveled logger for diagnostic traces
// through the recovery paths (brute-force xref rebuild, truncated
// stream tolerance, and so on). It exists purely for callers debugging
// a corrupt input; nothing in this module requires a Logger to be set,
// and the collected Warnings slice on pdf.Document remains the primary
// way a caller learns what went wrong.
package pdflog

import (
	"fmt"
	"io"
	"log"
)

// Level orders the severities a Logger accepts, lowest first.
type Level int

const (
	Debug Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "LOG"
	}
}

// Logger writes leveled lines through the standard library's log
// package, the same no-frills approach the rest of this module takes
// to ambient concerns it doesn't otherwise need a third-party library
// for.
type Logger struct {
	out   *log.Logger
	level Level
}

// New returns a Logger that writes lines at level and above to w.
func New(w io.Writer, level Level) *Logger {
	return &Logger{out: log.New(w, "", log.LstdFlags), level: level}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	l.out.Printf("%s "+format, append([]any{level}, args...)...)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, format, args...) }

// Warnings writes each message in msgs as a Warn-level line, the shape
// pdf.Load uses to mirror its accumulated Warnings slice into a
// Logger when the caller configured one.
func (l *Logger) Warnings(msgs []string) {
	if l == nil {
		return
	}
	for _, m := range msgs {
		l.Warnf("%s", fmt.Sprint(m))
	}
}
