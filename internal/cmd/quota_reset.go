package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/policyworks/quotaledger/internal/output"
)

var (
	quotaResetAll     bool
	quotaResetKey     string
	quotaResetPrefix  string
	quotaResetProfile string
	quotaResetYes     bool
	quotaResetDryRun  bool
)

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored quota rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format == output.FormatMarkdown {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query, err := quotaQuery(quotaResetAll, quotaResetKey, quotaResetPrefix, quotaResetProfile)
		if err != nil {
			return err
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !quotaResetYes && !quotaResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ls, err := openLedgerStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer ls.Close() // nolint:errcheck // best-effort cleanup

		matched, err := ls.admin.CountEntries(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, "quota.reset", format)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if quotaResetDryRun {
			return writeQuotaResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := ls.admin.ResetEntries(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeQuotaResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeQuotaResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d quota row(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d quota row(s)\n", deleted, matched)
	return err
}

func init() {
	addOutputFlags(quotaResetCmd)
	quotaResetCmd.Flags().BoolVar(&quotaResetAll, "all", false, "Reset every row")
	quotaResetCmd.Flags().StringVar(&quotaResetKey, "key", "", "Reset a single row (exact storage key)")
	quotaResetCmd.Flags().StringVar(&quotaResetPrefix, "prefix", "", "Reset rows whose key has this prefix")
	quotaResetCmd.Flags().StringVar(&quotaResetProfile, "profile", "", "Reset every rule's row for one profile ID (hex)")
	quotaResetCmd.Flags().BoolVar(&quotaResetYes, "yes", false, "Confirm destructive reset")
	quotaResetCmd.Flags().BoolVar(&quotaResetDryRun, "dry-run", false, "Show what would be deleted")
}
