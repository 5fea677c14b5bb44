// Package core provides the API chassis for the billgate service. It creates
// the chi router and enforces cross-cutting concerns -- panic recovery,
// request correlation, security headers, logging, and metrics -- before
// requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"billgate/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records request latency and count metrics.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates the chassis dependencies for the billgate API, allowing
// injection during testing and distinct configuration per environment.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// HealthProbes are the subsystem checks run by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are invoked under the /v1 route group. Handler
	// packages register their routes through these to avoid an import cycle
	// with core.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the server for route
// mounting. The caller mounts routes via MountRoutes after registering
// handlers and probes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-held resources and
// flushes anything buffered. Database pools and queue clients are owned by
// main and closed there.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if flusher, ok := s.Metrics.(interface{ Flush(context.Context) error }); ok && s.Metrics != nil {
		if err := flusher.Flush(ctx); err != nil {
			s.Logger.Error("error flushing metrics", "error", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
