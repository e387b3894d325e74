package util

import (
	"io"

	"github.com/armadaproject/cyclebench/internal/common/logging"
)

// CloseResource closes c and logs, rather than returns, any error. Nil closers are ignored.
func CloseResource(name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.WithStacktrace(err).Warnf("Error closing %s", name)
	}
}
