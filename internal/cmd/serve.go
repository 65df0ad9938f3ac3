package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/appid"
	errwrap "github.com/policyworks/quotaledger/internal/errors"
	"github.com/policyworks/quotaledger/internal/metrics"
	"github.com/policyworks/quotaledger/internal/observability"
	"github.com/policyworks/quotaledger/internal/server"
	"github.com/policyworks/quotaledger/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
	serveRules string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewServiceUnavailableError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rule evaluation API",
	Long: `Load the configured rules and serve them over HTTP with graceful shutdown.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (rules are not rebuilt; restart to apply)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := appid.TelemetryNamespace(ctx)

		cfg, err := loadConfig(cmd)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "configuration load failed")
		}

		observability.InitServerLogger(identity.BinaryName, cfg.Logging, namespace)
		logger := observability.ServerLogger

		if err := observability.InitMetrics(cfg.Metrics, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "metrics initialization failed")
		}

		set, err := loadRuleSet(ctx, cfg, serveRules)
		if err != nil {
			logger.Error("Failed to load rules", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "rule configuration failed")
		}
		for _, rule := range set.List() {
			metrics.RecordRuleLoaded(rule.Name())
			logger.Info("Rule loaded", zap.String("rule_id", rule.ID()), zap.String("rule", rule.Name()))
		}

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("rules", len(set.List())),
			zap.Bool("metrics_enabled", cfg.Metrics.Enabled))

		hm := handlers.InitHealthManager(versionInfo.Version)
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		if cfg.Health.Enabled {
			hm.RegisterRuleCheckers(set)
		}

		handlers.SetAppIdentity(identity)
		srv := server.New(cfg.Server, set)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run in reverse registration order.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				// stderr may already be closed
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			if err := set.Close(); err != nil {
				logger.Warn("Closing rule stores failed", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("Configuration file re-read; restart to apply rule changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			_ = set.Close()
			return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
	serveCmd.Flags().StringVar(&serveRules, "rules", "", "Rule file (YAML list) replacing the configured rules")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
