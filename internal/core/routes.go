package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// It sits above the 30 second provider confirmation timeout so a slow
// confirmation is reported by the gate, not by a cancelled context.
const defaultRequestTimeout = 35 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Api-Key",
}

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the /v1 route group, and the health check.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", s.mountV1)
	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order:
//
//  1. Recoverer       - catches panics; outermost to catch all failures.
//  2. ContextTimeout  - bounds request handling.
//  3. RequestID       - generates/propagates the correlation ID.
//  4. SecurityHeaders - ensures all responses include security headers.
//  5. RequestLogger   - structured logging with redacted headers.
//  6. Metrics         - request latency and count recording.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.MetricsMiddleware)
}

// mountV1 registers all v1 endpoints. Handler packages register their routes
// via V1RouteRegistrars (populated by main) to avoid import cycles with core.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// requestTimeout returns the request deadline, stretched when the configured
// confirmation timeout would not fit under the default.
func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Gateway.ConfirmTimeout >= defaultRequestTimeout {
		return s.Config.Gateway.ConfirmTimeout + 5*time.Second
	}
	return defaultRequestTimeout
}
