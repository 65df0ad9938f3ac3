package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"

	"github.com/policyworks/quotaledger/internal/config"
)

// DefaultMetricsPort is assumed when the exporter's bound port is unknown.
const DefaultMetricsPort = 9090

var (
	// TelemetrySystem receives every quota, ledger, HTTP and error metric.
	// Metric helpers are no-ops while it is nil.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the collected metrics in Prometheus format.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on cfg.Port (0 picks a free
// port) and installs TelemetrySystem. The namespace prefixes every metric.
func InitMetrics(cfg config.MetricsConfig, namespace string) error {
	if !cfg.Enabled {
		return nil
	}

	requested := cfg.Port
	if requested < 0 {
		requested = 0
	}
	metricsPort = requested

	exporter := exporters.NewPrometheusExporter(namespace, fmt.Sprintf(":%d", requested))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	if actual, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = actual
	} else if requested == 0 {
		metricsPort = DefaultMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		return fmt.Errorf("create telemetry system: %w", err)
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// GetMetricsPort returns the port the Prometheus exporter listens on.
func GetMetricsPort() int {
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
