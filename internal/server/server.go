package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vigil-labs/vigil/internal/auth"
	"github.com/vigil-labs/vigil/internal/ledger"
	"github.com/vigil-labs/vigil/internal/ratelimit"
	"github.com/vigil-labs/vigil/internal/telemetry"
)

// Server is the gate's HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Verifier, Limiter, Metrics.
type ServerConfig struct {
	// Required dependencies.
	Gate   Evaluator
	Ledger ledger.Ledger
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Verifier *auth.Verifier
	Limiter  ratelimit.Limiter
	Metrics  *telemetry.GateMetrics

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CompleteFailClosed  bool

	// OpenAPISpec, when non-nil, is served at GET /openapi.yaml.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Gate:                cfg.Gate,
		Ledger:              cfg.Ledger,
		Metrics:             cfg.Metrics,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CompleteFailClosed:  cfg.CompleteFailClosed,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// The read endpoints are rate limited per client. The validate path is
	// not: its backpressure is the gate's inflight cap, which denies with
	// an auditable OVERLOAD verdict instead of a 429.
	readRL := ratelimit.Middleware(cfg.Limiter, agentKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	mux.Handle("POST /validate", http.HandlerFunc(h.HandleValidate))
	mux.Handle("GET /v1/verdicts/recent", readRL(http.HandlerFunc(h.HandleVerdictsRecent)))
	mux.Handle("GET /v1/metrics/summary", readRL(http.HandlerFunc(h.HandleMetricsSummary)))
	mux.HandleFunc("GET /health", h.HandleHealth)

	if len(cfg.OpenAPISpec) > 0 {
		mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(cfg.OpenAPISpec)
		})
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Verifier, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// agentKeyFunc extracts the rate-limit key: the authenticated agent when
// auth is enabled, the client IP otherwise.
func agentKeyFunc(r *http.Request) string {
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return "agent:" + claims.AgentID
	}
	return "ip:" + ratelimit.IPKeyFunc(r)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
