// Package rfslog provides the process's structured logger as an explicit
// value threaded through component constructors, never a package-level
// global. This is the re-architecture spec.md §9 calls for: the teacher
// (and the original Rust source) read an environment-wide logger off a
// thread-local/global; here every component takes its logger at
// construction time (storage.Engine and scrub.Scrubber take the
// zerolog.Logger that *rfslog.Logger wraps), and tests can supply an
// isolated one.
package rfslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Logger struct {
	zerolog.Logger
}

// New builds a logger writing structured JSON to w (nil defaults to stderr).
func New(w io.Writer, component string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{Logger: l}
}

// Nop returns a logger that discards everything, for tests that don't care.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Sub returns a child logger tagged with an additional field, used when a
// component hands a scoped logger down to a worker goroutine.
func (l *Logger) Sub(key, value string) *Logger {
	sub := l.Logger.With().Str(key, value).Logger()
	return &Logger{Logger: sub}
}
