package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Server exposes health probes and Prometheus metrics over HTTP
type Server struct {
	httpServer *http.Server
	port       int
}

// NewServer creates a new observability server
func NewServer(port int) *Server {
	return &Server{
		port: port,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.HandleFunc("/health/ready", ReadinessHandler())

	// Metrics endpoint
	mux.Handle("/metrics", MetricsHandler())

	return mux
}

// Start starts the observability server and blocks until it stops. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
