package server

import (
	"context"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/appid"
	"github.com/policyworks/quotaledger/internal/observability"
	"github.com/policyworks/quotaledger/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1/rules", func(r chi.Router) {
		r.Get("/", handlers.ListRulesHandler)
		r.Route("/{ruleID}", func(r chi.Router) {
			r.Post("/approve", handlers.ApproveHandler)
			r.Post("/use", handlers.UseHandler)
			r.Get("/quota/{profileID}", handlers.QuotaHandler)
			r.Delete("/quota/{profileID}", handlers.ClearQuotaHandler)
		})
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts /admin/signal when <PREFIX>ADMIN_TOKEN is set.
func (s *Server) registerAdminEndpoint() {
	envPrefix := appid.EnvPrefix(context.Background())
	adminToken := os.Getenv(envPrefix + "ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envPrefix + "ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
