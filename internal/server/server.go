package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/config"
	apperrors "github.com/policyworks/quotaledger/internal/errors"
	"github.com/policyworks/quotaledger/internal/metrics"
	"github.com/policyworks/quotaledger/internal/observability"
	"github.com/policyworks/quotaledger/internal/rules"
	"github.com/policyworks/quotaledger/internal/server/handlers"
	servermw "github.com/policyworks/quotaledger/internal/server/middleware"
)

// Server serves the rule evaluation API and the operational endpoints.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	start  time.Time
}

// New builds the router for cfg. set may be nil, in which case no rules are served.
func New(cfg config.ServerConfig, set *rules.Set) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	// RequestID first for correlation, metrics around everything, recovery innermost
	// so a panic still produces a measured 500.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{router: r, cfg: cfg}

	handlers.SetHTTPErrorResponder(HandleError)
	handlers.SetRuleSet(set)

	s.registerRoutes()

	return s
}

// Addr is host:port from the configuration.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Start listens on Addr and blocks until the server stops.
func (s *Server) Start() error {
	addr := s.Addr()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       orDefault(s.cfg.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      orDefault(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       orDefault(s.cfg.IdleTimeout, 120*time.Second),
	}

	s.start = time.Now()
	metrics.SetServerStartTime(s.start.Unix())

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	if !s.start.IsZero() {
		metrics.SetServerUptime(int64(time.Since(s.start).Seconds()))
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Port() int {
	return s.cfg.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
