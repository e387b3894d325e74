package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/armadaproject/cyclebench/internal/common/logging"
)

const shutdownTimeout = 5 * time.Second

// ServeMetrics exposes the metrics of gatherer on /metrics at port. Port 0 picks a free port.
func ServeMetrics(port uint16, gatherer prometheus.Gatherer) (*Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return ServeHttp(port, mux)
}

type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

func ServeHttp(port uint16, handler http.Handler) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s := &Server{
		srv:      &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		listener: listener,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		log.Infof("Starting http server listening on %s", listener.Addr())
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithStacktrace(err).Error("http server failed")
		}
	}()
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Shutdown stops accepting connections and waits for open requests to finish.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Infof("Stopping http server listening on %s", s.Addr())
	if err := s.srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http server did not shut down cleanly")
	}
	<-s.done
}
