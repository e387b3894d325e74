package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NullLogger drops every entry below panic level.
var NullLogger = newNullLogger()

func newNullLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return FromLogrus(l)
}
