// Package skiplog wraps log/slog with the handful of domain events the
// skiplist core and pmpool package want to report: observation-time
// cleaning of a dirty TPO, durable flush of a TPO slot, and pool recovery. A nil
// *Logger is valid and discards everything, so embedding services that
// don't want library logging never pay for it.
package skiplog

import (
	"log/slog"
	"os"
)

// Logger is a thin, domain-named wrapper over *slog.Logger.
type Logger struct {
	inner *slog.Logger
}

// New wraps an existing *slog.Logger. Passing nil produces a discarding
// Logger.
func New(inner *slog.Logger) *Logger {
	return &Logger{inner: inner}
}

// Default returns a Logger backed by a text handler on stderr at Info
// level, matching the level most small Go command-line tools in the pack
// default to.
func Default() *Logger {
	return New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Discard returns a Logger that drops everything, for tests that don't
// care about log output.
func Discard() *Logger { return New(nil) }

func (l *Logger) Debug(msg string, args ...any) {
	if l == nil || l.inner == nil {
		return
	}
	l.inner.Debug(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	if l == nil || l.inner == nil {
		return
	}
	l.inner.Info(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	if l == nil || l.inner == nil {
		return
	}
	l.inner.Error(msg, args...)
}

// Dirty logs a node's TPO being observed dirty at the given level before
// cleaning.
func (l *Logger) Dirty(level int, off uint64) {
	l.Debug("observed dirty tpo", "level", level, "offset", off)
}

// Flushed logs a durable flush of a TPO slot.
func (l *Logger) Flushed(addr, length uintptr) {
	l.Debug("flushed tpo slot", "addr", addr, "length", length)
}

// Recovered logs a pool recovery / remap event.
func (l *Logger) Recovered(uuid [16]byte, base uintptr) {
	l.Info("pool recovered", "uuid", uuid, "base", base)
}
