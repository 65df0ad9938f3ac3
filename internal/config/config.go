package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are resolved in layers:
// Layer 1: built-in defaults (see defaults.go)
// Layer 2: user config file (~/.config/quotaledger/config.yaml or --config)
// Layer 3: environment variables and runtime overrides
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`

	// Rules holds one argument map per configured rule, e.g.
	//   - rule: per-profile-throttle-rule
	//     rule_id: uploads
	//     per_hour: 10
	Rules []map[string]any `mapstructure:"rules"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the durable backend.
//
// Driver is one of libsql, sqlite3, postgres, mysql, redis or memory. Empty
// selects the local file driver compiled into the build. Path is
// used by the file drivers; URL takes precedence when set.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
	Table     string `mapstructure:"table"`
}

// LedgerConfig holds defaults applied to quota rules that do not set them.
type LedgerConfig struct {
	// ExpirySecs is how long a row lock survives before it is ignored.
	ExpirySecs float64 `mapstructure:"expiry_secs"`

	// Persistent selects the durable store for rules that omit "persistent".
	Persistent bool `mapstructure:"persistent"`
}

// Expiry returns ExpirySecs as a duration.
func (c LedgerConfig) Expiry() time.Duration {
	return time.Duration(c.ExpirySecs * float64(time.Second))
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
