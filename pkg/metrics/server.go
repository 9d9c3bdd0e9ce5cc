package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves a Collector's gauges over /metrics.
type Server struct {
	http *http.Server
}

// NewServer wires a fresh registry containing collector and binds it to
// addr; call Serve to start accepting connections.
func NewServer(addr string, collector *Collector) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// Serve blocks accepting connections until the server is shut down.
// Returns nil on a clean shutdown (http.ErrServerClosed).
func (s *Server) Serve() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
