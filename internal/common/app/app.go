package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/armadaproject/cyclebench/internal/common/logging"
)

// CreateContextWithShutdown returns a context that is cancelled on the first SIGINT or SIGTERM.
// A second signal exits the process immediately with status 130.
func CreateContextWithShutdown() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			logging.Warnf("Received %s, finishing in-flight cycles. Signal again to exit immediately", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		<-c
		os.Exit(130)
	}()
	return ctx, cancel
}
