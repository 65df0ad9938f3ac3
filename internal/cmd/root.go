package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/appid"
	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// App identity loaded from .fulmen/app.yaml
	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the loaded app identity, falling back to the
// built-in names when none could be loaded.
func GetAppIdentity() *appidentity.Identity {
	if appIdentity != nil {
		return appIdentity
	}
	return &appidentity.Identity{
		BinaryName: appid.DefaultBinaryName,
		ConfigName: appid.DefaultBinaryName,
		EnvPrefix:  appid.DefaultEnvPrefix,
	}
}

var rootCmd = &cobra.Command{
	// initConfig overwrites these from app identity.
	Use:   filepath.Base(os.Args[0]),
	Short: "Per-profile quota ledger and approval rules",
	Long: `Evaluate approval rules and keep per-profile hourly and daily request
quotas in a shared ledger.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute runs the root command. main calls it once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the real system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity, err := appid.Get(context.Background()); err == nil && identity != nil {
		appIdentity = identity
		applyIdentityHelp(identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults to app identity config path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func applyIdentityHelp(identity *appidentity.Identity) {
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
		rootCmd.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to perform specific operations.", identity.BinaryName, identity.Description)
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

// initConfig locates the config file with viper and hands it to the config
// loader, which owns layering and decoding.
func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity from .fulmen/app.yaml", err)
	}
	if identity != nil {
		appIdentity = identity
		applyIdentityHelp(identity)
	}
	identity = GetAppIdentity()

	observability.InitCLILogger(identity.BinaryName, verbose)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
			viper.AddConfigPath(dir)
		} else if home, err := os.UserHomeDir(); err == nil {
			observability.CLILogger.Debug("Could not resolve XDG config directory, falling back to home directory")
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// viper appends the separator itself.
	viper.SetEnvPrefix(strings.TrimSuffix(identity.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		config.SetConfigFile(viper.ConfigFileUsed())
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	} else if cfgFile != "" {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
	} else {
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}

	setDefaults()
}

// setDefaults mirrors the loader's defaults for values read through viper.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.profile", "SIMPLE")

	viper.SetDefault("store.table", config.DefaultTable)
	viper.SetDefault("ledger.expiry_secs", config.DefaultExpirySecs)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", observability.DefaultMetricsPort)
}

// loadConfig loads the layered configuration. Flags the user changed on cmd
// are applied as runtime overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	server := map[string]any{}
	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		server["host"] = viper.GetString("server.host")
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		server["port"] = viper.GetInt("server.port")
	}
	if len(server) > 0 {
		overrides["server"] = server
	}
	if verbose {
		overrides["logging"] = map[string]any{"level": "debug"}
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
