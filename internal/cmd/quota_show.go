package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/output"
	"github.com/policyworks/quotaledger/internal/rules"
)

var (
	quotaShowRule    string
	quotaShowProfile string
	quotaShowRules   string
)

type usageReporter interface {
	Usage(ctx context.Context, profile rules.ProfileInfo) (core.QuotaRecord, error)
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one profile's quota under a configured rule",
	Long: `Show one profile's counts as the named rule sees them. The rule's own
store is used, including any db_uri or db_file it sets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		profileID, err := hex.DecodeString(strings.TrimSpace(quotaShowProfile))
		if err != nil || len(profileID) == 0 {
			return fmt.Errorf("--profile must be non-empty hex")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		set, err := loadRuleSet(cmd.Context(), cfg, quotaShowRules)
		if err != nil {
			return err
		}
		defer set.Close() // nolint:errcheck // best-effort cleanup

		rule, ok := set.Get(quotaShowRule)
		if !ok {
			return fmt.Errorf("rule %q is not configured", quotaShowRule)
		}
		reporter, ok := rule.(usageReporter)
		if !ok {
			return fmt.Errorf("rule %q (%s) does not keep a quota", rule.ID(), rule.Name())
		}

		profile := rules.ProfileInfo{ID: profileID}
		rec, err := reporter.Usage(cmd.Context(), profile)
		if err != nil {
			return err
		}
		key := core.LedgerKey{RuleID: rule.ID(), CallerID: profileID}
		row := output.LedgerRow{
			Key:       key.StorageKey(),
			RuleID:    rule.ID(),
			ProfileID: hex.EncodeToString(profileID),
			HourCount: rec.HourCount,
			DayCount:  rec.DayCount,
			Locked:    rec.Locked(),
			Updated:   rec.Timestamp,
		}

		sink, err := openCommandSink(cmd, "quota.show", format)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatRows([]output.LedgerRow{row})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	addOutputFlags(quotaShowCmd)
	quotaShowCmd.Flags().StringVar(&quotaShowRule, "rule", "", "Rule ID")
	quotaShowCmd.Flags().StringVar(&quotaShowProfile, "profile", "", "Profile ID (hex)")
	quotaShowCmd.Flags().StringVar(&quotaShowRules, "rules", "", "Rule file (YAML list) replacing the configured rules")
	_ = quotaShowCmd.MarkFlagRequired("rule")
	_ = quotaShowCmd.MarkFlagRequired("profile")
}
