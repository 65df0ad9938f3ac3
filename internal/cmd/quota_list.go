package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/policyworks/quotaledger/internal/core/store"
	"github.com/policyworks/quotaledger/internal/output"
)

var (
	quotaListAll     bool
	quotaListPrefix  string
	quotaListProfile string
	quotaListRule    string
)

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored quota rows",
	Long: `List the rows in the configured ledger store with their current counts.

Counts are shown after hour and day rollover, so a row last charged on a
previous day reports zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query, err := quotaQuery(quotaListAll, "", quotaListPrefix, quotaListProfile)
		if err != nil {
			return err
		}
		if !query.All && query.Key == "" && query.Prefix == "" {
			query.All = true
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

		entries, err := ls.admin.ListEntries(cmd.Context(), query)
		if err != nil {
			return err
		}

		rule := strings.TrimSpace(quotaListRule)
		rows := make([]output.LedgerRow, 0, len(entries))
		for _, entry := range entries {
			row := output.RowFromEntry(entry, ls.codec)
			if rule != "" && row.RuleID != rule {
				continue
			}
			rows = append(rows, row)
		}

		sink, err := openCommandSink(cmd, "quota.list", format)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatRows(rows)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

// quotaQuery builds a store query from the shared selection flags. A
// profile selects every rule's row for that caller.
func quotaQuery(all bool, key, prefix, profile string) (store.EntryQuery, error) {
	query := store.EntryQuery{
		All:    all,
		Key:    strings.TrimSpace(key),
		Prefix: strings.TrimSpace(prefix),
	}
	if p := strings.TrimSpace(profile); p != "" {
		if query.Prefix != "" {
			return store.EntryQuery{}, fmt.Errorf("--profile and --prefix are mutually exclusive")
		}
		id, err := hex.DecodeString(p)
		if err != nil || len(id) == 0 {
			return store.EntryQuery{}, fmt.Errorf("--profile must be hex: %q", p)
		}
		query.Prefix = hex.EncodeToString(id) + ":"
	}
	return query, nil
}

func init() {
	addOutputFlags(quotaListCmd)
	quotaListCmd.Flags().BoolVar(&quotaListAll, "all", false, "List all rows (default)")
	quotaListCmd.Flags().StringVar(&quotaListPrefix, "prefix", "", "List rows whose key has this prefix")
	quotaListCmd.Flags().StringVar(&quotaListProfile, "profile", "", "List rows for one profile ID (hex)")
	quotaListCmd.Flags().StringVar(&quotaListRule, "rule", "", "Only show rows for this rule ID")
}
