package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/observability"
)

func TestLoggers(t *testing.T) {
	originalCLI, originalServer := observability.CLILogger, observability.ServerLogger
	t.Cleanup(func() {
		observability.CLILogger = originalCLI
		observability.ServerLogger = originalServer
	})

	t.Run("CLI logger", func(t *testing.T) {
		observability.ServerLogger = nil
		observability.InitCLILogger("quotaledger-test", true)
		require.NotNil(t, observability.CLILogger)
		assert.Same(t, observability.CLILogger, observability.Logger())

		observability.CLILogger.Debug("quota check", zap.String("rule", "uploads"))
	})

	t.Run("structured server logger", func(t *testing.T) {
		observability.InitServerLogger("quotaledger-test",
			config.LoggingConfig{Level: "debug", Profile: "structured"}, "quotaledger")
		require.NotNil(t, observability.ServerLogger)
		assert.Same(t, observability.ServerLogger, observability.Logger())

		observability.ServerLogger.Warn("ledger row locked",
			zap.String("key", "706964:rid"),
			zap.String("holder", "abc"))
	})

	t.Run("simple server logger", func(t *testing.T) {
		logger, err := observability.NewServerLogger("quotaledger-test",
			config.LoggingConfig{Level: "warning", Profile: "SIMPLE"})
		require.NoError(t, err)
		logger.Info("suppressed below warn")
	})
}

func TestMetricsDisabled(t *testing.T) {
	original := observability.TelemetrySystem
	t.Cleanup(func() { observability.TelemetrySystem = original })
	observability.TelemetrySystem = nil

	require.NoError(t, observability.InitMetrics(config.MetricsConfig{Enabled: false}, "quotaledger"))
	assert.Nil(t, observability.TelemetrySystem)
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
	assert.NotEmpty(t, crucible.GetVersionString())
}
