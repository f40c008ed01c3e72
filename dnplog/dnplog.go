// Package dnplog provides the pluggable structured logging used by every
// long-lived component (channel, association, outstation session).
package dnplog

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Provider is the logging backend interface. Components never call a
// concrete logging library directly; they log through a Provider so
// bindings and embedders can redirect output.
type Provider interface {
	Critical(format string, v ...interface{})
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Logger wraps a Provider with an atomic enable flag so a disabled
// Logger costs one atomic load per call on the hot parse/dispatch path.
type Logger struct {
	provider Provider
	has      uint32
}

// New creates a Logger backed by logrus, with the given fields attached
// to every message (station address, association id, ...).
func New(fields logrus.Fields) Logger {
	return Logger{
		provider: logrusProvider{logrus.WithFields(fields)},
		has:      0,
	}
}

// NewDisabled creates a Logger with no output until LogMode(true) is called.
func NewDisabled() Logger {
	return New(nil)
}

// LogMode enables or disables log output.
func (l *Logger) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&l.has, 1)
	} else {
		atomic.StoreUint32(&l.has, 0)
	}
}

// SetProvider overrides the logging backend.
func (l *Logger) SetProvider(p Provider) {
	if p != nil {
		l.provider = p
	}
}

// Critical logs a CRITICAL level message.
func (l Logger) Critical(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 {
		l.provider.Critical(format, v...)
	}
}

// Error logs an ERROR level message.
func (l Logger) Error(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 {
		l.provider.Error(format, v...)
	}
}

// Warn logs a WARN level message.
func (l Logger) Warn(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 {
		l.provider.Warn(format, v...)
	}
}

// Debug logs a DEBUG level message.
func (l Logger) Debug(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 {
		l.provider.Debug(format, v...)
	}
}

// logrusProvider adapts a *logrus.Entry to Provider. logrus has no
// "critical" level, so it maps to Fatal-less Error with a
// severity=critical field.
type logrusProvider struct {
	entry *logrus.Entry
}

var _ Provider = logrusProvider{}

func (p logrusProvider) Critical(format string, v ...interface{}) {
	p.entry.WithField("severity", "critical").Errorf(format, v...)
}

func (p logrusProvider) Error(format string, v ...interface{}) {
	p.entry.Errorf(format, v...)
}

func (p logrusProvider) Warn(format string, v ...interface{}) {
	p.entry.Warnf(format, v...)
}

func (p logrusProvider) Debug(format string, v ...interface{}) {
	p.entry.Debugf(format, v...)
}
