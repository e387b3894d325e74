package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry so that callers never depend on logrus directly.
// A Logger is immutable; the With* methods return a new Logger.
type Logger struct {
	underlying *logrus.Entry
}

// FromLogrus returns a Logger that writes through the given logrus logger.
func FromLogrus(l *logrus.Logger) *Logger {
	return &Logger{underlying: logrus.NewEntry(l)}
}

// Unwrap exposes the underlying entry for libraries that need a logrus.FieldLogger.
func (l *Logger) Unwrap() *logrus.Entry {
	return l.underlying
}

// Debug logs a message at level Debug.
func (l *Logger) Debug(args ...any) {
	l.underlying.Debug(args...)
}

// Info logs a message at level Info.
func (l *Logger) Info(args ...any) {
	l.underlying.Info(args...)
}

// Warn logs a message at level Warn.
func (l *Logger) Warn(args ...any) {
	l.underlying.Warn(args...)
}

// Error logs a message at level Error.
func (l *Logger) Error(args ...any) {
	l.underlying.Error(args...)
}

// Panic logs a message at level Panic and then panics.
func (l *Logger) Panic(args ...any) {
	l.underlying.Panic(args...)
}

// Fatal logs a message at level Fatal then the process will exit with status set to 1.
func (l *Logger) Fatal(args ...any) {
	l.underlying.Fatal(args...)
}

// Debugf logs a message at level Debug.
func (l *Logger) Debugf(format string, args ...any) {
	l.underlying.Debugf(format, args...)
}

// Infof logs a message at level Info.
func (l *Logger) Infof(format string, args ...any) {
	l.underlying.Infof(format, args...)
}

// Warnf logs a message at level Warn.
func (l *Logger) Warnf(format string, args ...any) {
	l.underlying.Warnf(format, args...)
}

// Errorf logs a message at level Error.
func (l *Logger) Errorf(format string, args ...any) {
	l.underlying.Errorf(format, args...)
}

// Fatalf logs a message at level Fatal then the process will exit with status set to 1.
func (l *Logger) Fatalf(format string, args ...any) {
	l.underlying.Fatalf(format, args...)
}

// WithField returns a new Logger with the key-value pair added as a new field
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{underlying: l.underlying.WithField(key, value)}
}

// WithFields returns a new Logger with all key-value pairs in the map added as new fields
func (l *Logger) WithFields(args map[string]any) *Logger {
	return &Logger{underlying: l.underlying.WithFields(args)}
}

// WithError returns a new Logger with the error added as a field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{underlying: l.underlying.WithError(err)}
}

// WithStacktrace returns a new Logger with the error and (if available) the stacktrace added as fields
func (l *Logger) WithStacktrace(err error) *Logger {
	return &Logger{underlying: entryWithStacktrace(l.underlying, err)}
}
