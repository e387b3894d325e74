package logging

import (
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// The standard logger. Defaults to debug level text on stdout until a command configures logging.
var stdLogger atomic.Pointer[Logger]

func init() {
	stdLogger.Store(FromLogrus(createDefaultLogger()))
}

// ReplaceStdLogger swaps the standard logger. Safe to call while other goroutines are logging.
func ReplaceStdLogger(l *Logger) {
	stdLogger.Store(l)
}

func StdLogger() *Logger {
	return stdLogger.Load()
}

func Debug(args ...any) {
	StdLogger().Debug(args...)
}

func Info(args ...any) {
	StdLogger().Info(args...)
}

func Warn(args ...any) {
	StdLogger().Warn(args...)
}

func Error(args ...any) {
	StdLogger().Error(args...)
}

// Fatal logs at level Fatal, then exits with status 1.
func Fatal(args ...any) {
	StdLogger().Fatal(args...)
}

func Debugf(format string, args ...any) {
	StdLogger().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	StdLogger().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	StdLogger().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	StdLogger().Errorf(format, args...)
}

// Fatalf logs at level Fatal, then exits with status 1.
func Fatalf(format string, args ...any) {
	StdLogger().Fatalf(format, args...)
}

func WithField(key string, value any) *Logger {
	return StdLogger().WithField(key, value)
}

func WithFields(args map[string]any) *Logger {
	return StdLogger().WithFields(args)
}

func WithError(err error) *Logger {
	return StdLogger().WithError(err)
}

// WithStacktrace adds err and, when err or one of its causes carries one, its pkg/errors stack trace.
func WithStacktrace(err error) *Logger {
	return StdLogger().WithStacktrace(err)
}

func createDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli})
	return l
}
