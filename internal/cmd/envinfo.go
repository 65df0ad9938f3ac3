package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/observability"
)

// redactURL hides everything after the scheme of a store URL, which may
// carry credentials.
func redactURL(u string) string {
	scheme, _, ok := strings.Cut(u, "://")
	if !ok {
		scheme, _, _ = strings.Cut(u, ":")
	}
	return scheme + "://(redacted)"
}

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime, store and rule configuration.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		log.Info("=== " + identity.BinaryName + " Environment Information ===")
		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("  Go:         "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  Platform:   " + runtime.GOOS + "/" + runtime.GOARCH)
		log.Info("")

		cfg, err := loadConfig(cmd)
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("")

		driver := cfg.Store.Driver
		if driver == "" {
			driver = "(build default)"
		}
		log.Info("Ledger Store:")
		log.Info("  Driver:         "+driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  URL:            " + redactURL(cfg.Store.URL))
		} else {
			log.Info("  Path:           "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		log.Info("  Table:          " + cfg.Store.Table)
		log.Info(fmt.Sprintf("  Lock Expiry:    %s", cfg.Ledger.Expiry()))
		log.Info(fmt.Sprintf("  Persistent:     %t", cfg.Ledger.Persistent))
		log.Info("")

		log.Info(fmt.Sprintf("Rules: %d configured", len(cfg.Rules)))
		for i, args := range cfg.Rules {
			log.Info(fmt.Sprintf("  [%d] %v (id %v)", i, args["rule"], args["rule_id"]))
		}
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
