// Package microservice provides the agent's HTTP surface: liveness and
// readiness probes, Prometheus metrics and the latest persisted readings.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/illmade-knight/go-hostwatch/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ReadinessGate reports whether the agent is ready to serve traffic.
// *mqtttransport.Supervisor satisfies it.
type ReadinessGate interface {
	IsConnected() bool
}

// Service defines the lifecycle of an HTTP server.
type Service interface {
	Start() error
	Shutdown(ctx context.Context) error
	Mux() *http.ServeMux
	GetHTTPPort() string
}

// Option configures a BaseServer.
type Option func(*BaseServer)

// WithReadiness serves /readyz from gate. Without it /readyz always
// reports ready.
func WithReadiness(gate ReadinessGate) Option {
	return func(s *BaseServer) { s.gate = gate }
}

// WithMetrics serves /metrics from gatherer.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *BaseServer) { s.gatherer = gatherer }
}

// WithLatest serves /latest/ from c.
func WithLatest(c cache.SnapshotCache) Option {
	return func(s *BaseServer) { s.latest = c }
}

// BaseServer is the agent's HTTP server.
type BaseServer struct {
	Logger     zerolog.Logger
	HTTPPort   string
	httpServer *http.Server
	mux        *http.ServeMux
	actualAddr string
	mu         sync.RWMutex

	gate     ReadinessGate
	gatherer prometheus.Gatherer
	latest   cache.SnapshotCache
}

// NewBaseServer creates the server and registers its handlers. httpPort is
// a listen address such as ":8080"; ":0" picks a free port.
func NewBaseServer(logger zerolog.Logger, httpPort string, opts ...Option) *BaseServer {
	s := &BaseServer{
		Logger:   logger.With().Str("component", "HTTPServer").Logger(),
		HTTPPort: httpPort,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /healthz", HealthzHandler)
	s.mux.HandleFunc("GET /readyz", s.readyzHandler)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.latest != nil {
		h := &latestHandler{cache: s.latest, logger: s.Logger}
		s.mux.HandleFunc("GET /latest/{kind}", h.list)
		s.mux.HandleFunc("GET /latest/{kind}/{subject...}", h.fetch)
	}

	s.httpServer = &http.Server{
		Addr:    httpPort,
		Handler: s.mux,
	}
	return s
}

// Start listens and serves in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.HTTPPort, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.Logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen.")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("HTTP server failed.")
		}
	}()

	return nil
}

// Shutdown gracefully stops the server within ctx's deadline.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.Logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.Logger.Info().Msg("HTTP server stopped.")
	return nil
}

// GetHTTPPort returns the port actually listened on, in ":port" form.
func (s *BaseServer) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, port, err := net.SplitHostPort(s.actualAddr)
	if err != nil {
		return s.HTTPPort
	}
	return ":" + port
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// HealthzHandler responds to liveness probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *BaseServer) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	if s.gate != nil && !s.gate.IsConnected() {
		http.Error(w, "not connected to broker", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}
