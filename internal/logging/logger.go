// Package logging provides the runtime's default logger and the
// interface job lifecycle code logs through, independent of the
// per-socket logging transport and route loops do directly via
// prometheus/common/log.
package logging

import (
	"fmt"
	"log"
	"os"
)

const (
	calldepth = 2
	levelInfo = "INFO"
	levelWarn = "WARN"
	levelErr  = "ERROR"
	levelDbg  = "DEBUG"
	levelFtl  = "FATAL"
)

// Logger is the logging surface the launch package and the worker
// command depend on, so callers can swap in their own implementation.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
}

// DefaultLogger wraps the standard library's *log.Logger with leveled
// prefixes and a toggleable debug level.
type DefaultLogger struct {
	*log.Logger
	debug bool
}

// NewDefault returns the runtime's default logger, writing to stderr.
func NewDefault() *DefaultLogger {
	return &DefaultLogger{
		Logger: log.New(os.Stderr, "mpigo", log.LstdFlags),
	}
}

func level(prefix, message string) string {
	return fmt.Sprintf("[%s]: %s", prefix, message)
}

func (l *DefaultLogger) Info(v ...interface{}) {
	l.Output(calldepth, level(levelInfo, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.Output(calldepth, level(levelInfo, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	l.Output(calldepth, level(levelWarn, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.Output(calldepth, level(levelWarn, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	l.Output(calldepth, level(levelErr, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.Output(calldepth, level(levelErr, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(levelDbg, fmt.Sprint(v...)))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(levelDbg, fmt.Sprintf(format, v...)))
	}
}

// ToggleDebug enables or disables Debug/Debugf output, returning the
// new state.
func (l *DefaultLogger) ToggleDebug(value bool) bool {
	l.debug = value
	return l.debug
}

func (l *DefaultLogger) Fatal(v ...interface{}) {
	l.Output(calldepth, level(levelFtl, fmt.Sprint(v...)))
	os.Exit(1)
}

func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.Output(calldepth, level(levelFtl, fmt.Sprintf(format, v...)))
	os.Exit(1)
}
