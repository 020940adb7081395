package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server serves pool health, failover history and metrics over HTTP
type Server struct {
	logger    zerolog.Logger
	health    HealthProvider
	failovers FailoverSource
	metrics   http.Handler
	server    *http.Server
	listener  net.Listener
}

// Option configures optional parts of the server
type Option func(*Server)

// WithFailoverSource enables GET /api/v1/chains/{chainID}/failovers
func WithFailoverSource(source FailoverSource) Option {
	return func(s *Server) { s.failovers = source }
}

// WithMetricsHandler mounts handler at GET /metrics
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) { s.metrics = handler }
}

// NewServer creates a new Server instance
func NewServer(logger zerolog.Logger, port int, health HealthProvider, opts ...Option) *Server {
	s := &Server{
		logger: logger.With().Str("component", "query_server").Logger(),
		health: health,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the bound address once Start has succeeded
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Start binds the port and serves in the background. A bind failure is
// returned to the caller.
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("query server listening")

	go func() {
		err := s.server.Serve(ln)
		switch err {
		case nil:
			s.logger.Info().Msg("Query server stopped normally")
		case http.ErrServerClosed:
			s.logger.Info().Msg("Query server closed gracefully")
		default:
			s.logger.Error().Err(err).Msg("Query server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
