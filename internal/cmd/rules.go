package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policyworks/quotaledger/internal/output"
	"github.com/policyworks/quotaledger/internal/rules"
)

var rulesFile string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List rule types and the configured rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		set, err := loadRuleSet(cmd.Context(), cfg, rulesFile)
		if err != nil {
			return err
		}
		defer set.Close() // nolint:errcheck // best-effort cleanup

		configured := make([]output.RuleRow, 0, len(set.List()))
		for _, r := range set.List() {
			_, quota := r.(rules.QuotaRule)
			configured = append(configured, output.RuleRow{ID: r.ID(), Name: r.Name(), Quota: quota})
		}

		sink, err := openCommandSink(cmd, "rules", format)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format != output.FormatJSON {
			if _, err := fmt.Fprintln(sink.writer, "Rule types:"); err != nil {
				return err
			}
			for _, name := range rules.Default.Names() {
				if _, err := fmt.Fprintf(sink.writer, "  %s\n", name); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(sink.writer); err != nil {
				return err
			}
		}

		rendered, err := output.NewFormatter(format).FormatRules(configured)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	addOutputFlags(rulesCmd)
	rulesCmd.Flags().StringVar(&rulesFile, "rules", "", "Rule file (YAML list) replacing the configured rules")
}
