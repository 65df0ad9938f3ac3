package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/core/store"
	errwrap "github.com/policyworks/quotaledger/internal/errors"
	"github.com/policyworks/quotaledger/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Load the configuration and rules, then round-trip a test row through the ledger store.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		ctx := cmd.Context()

		cfg, err := loadConfig(cmd)
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(ctx, err, "configuration load failed"))
			return
		}
		log.Info("✅ Configuration loaded")

		set, err := loadRuleSet(ctx, cfg, "")
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Rules invalid", errwrap.WrapConfigInvalid(ctx, err, "rule configuration failed"))
			return
		}
		log.Info("✅ Rules loaded", zap.Int("rules", len(set.List())))
		_ = set.Close()

		ls, err := openLedgerStore(ctx, cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitFailure, "Ledger store unavailable", errwrap.WrapStoreError(ctx, err, "store open failed"))
			return
		}
		defer ls.Close() // nolint:errcheck // best-effort cleanup

		if err := store.SelfTest(ctx, ls.backend); err != nil {
			ExitWithCode(log, foundry.ExitFailure, "Ledger store self-test failed", errwrap.WrapStoreError(ctx, err, "store self-test failed"))
			return
		}
		log.Info("✅ Ledger store answers")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
