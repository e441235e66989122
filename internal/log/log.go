// internal/log/log.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package log provides carb's leveled logger: callers get a small
// writer-per-level object that every component is handed explicitly
// rather than reaching for a global.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
)

// Logger is a simple leveled logger; debug and verbose output may be
// suppressed independently. Error and Fatal always fire.
type Logger struct {
	NErrors int
	mu      sync.Mutex
	debug   io.Writer
	verbose io.Writer
	warning io.Writer
	err     io.Writer
}

// New returns a Logger writing to stderr, with debug/verbose output gated
// by the given flags.
func New(verbose, debug bool) *Logger {
	l := &Logger{warning: os.Stderr, err: os.Stderr}
	if verbose {
		l.verbose = os.Stderr
	}
	if debug {
		l.debug = os.Stderr
	}
	return l
}

func (l *Logger) Print(f string, args ...interface{}) {
	fmt.Fprint(os.Stdout, format(f, args...))
}

func (l *Logger) Debug(f string, args ...interface{}) {
	if l == nil || l.debug == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.debug, format(f, args...))
}

func (l *Logger) Verbose(f string, args ...interface{}) {
	if l == nil || l.verbose == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.verbose, format(f, args...))
}

func (l *Logger) Warning(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprint(os.Stderr, format(f, args...))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.warning, format(f, args...))
}

func (l *Logger) Error(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprint(os.Stderr, format(f, args...))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.NErrors++
	fmt.Fprint(l.err, format(f, args...))
}

// Fatal logs and terminates the process. Reserved for setup/preflight
// failures; per-item failures must use Error.
func (l *Logger) Fatal(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprint(os.Stderr, format(f, args...))
		os.Exit(1)
	}
	l.mu.Lock()
	l.NErrors++
	fmt.Fprint(l.err, format(f, args...))
	l.mu.Unlock()
	os.Exit(1)
}

// CheckError logs and exits if err is non-nil. Used sparingly, only for
// conditions that truly can't be recovered from (e.g. a corrupt in-process
// invariant), not for any per-item error kind.
func (l *Logger) CheckError(err error, msg ...interface{}) {
	if err == nil {
		return
	}
	if len(msg) == 0 {
		l.Fatal("unexpected error: %+v", err)
		return
	}
	f := msg[0].(string)
	l.Fatal(f, msg[1:]...)
}

// FmtBytes renders n bytes in the largest binary unit that keeps the
// mantissa readable, for the run summary line and verbose progress
// reporting.
func FmtBytes(n int64) string {
	switch {
	case n >= 1024*1024*1024*1024:
		return fmt.Sprintf("%.2f TiB", float64(n)/(1024.*1024.*1024.*1024.))
	case n >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1024.*1024.*1024.))
	case n > 1024*1024:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1024.*1024.))
	case n > 1024:
		return fmt.Sprintf("%.2f kiB", float64(n)/1024.)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func format(f string, args ...interface{}) string {
	_, fn, line, _ := runtime.Caller(2)
	fnline := path.Base(path.Dir(fn)) + "/" + path.Base(fn) + fmt.Sprintf(":%d", line)
	s := fmt.Sprintf("%-28s: ", fnline)
	s += fmt.Sprintf(f, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
