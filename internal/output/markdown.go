package output

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatRows(rows []LedgerRow) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Rule", "Profile", "Hour", "Day", "Lock", "Updated"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.RuleID, row.ProfileID, row.HourCount, row.DayCount, lockLabel(row.Locked), updatedLabel(row)})
	}
	return "## Quota ledger\n\n" + t.RenderMarkdown(), nil
}

func (f *MarkdownFormatter) FormatRules(rules []RuleRow) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Rule", "Quota"})
	for _, r := range rules {
		t.AppendRow(table.Row{r.ID, r.Name, strconv.FormatBool(r.Quota)})
	}
	return "## Rules\n\n" + t.RenderMarkdown(), nil
}
