package output

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) FormatRows(rows []LedgerRow) (string, error) {
	if len(rows) == 0 {
		return ascii.DrawBox("Quota Ledger\n\n(no stored quota rows)", 0), nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Rule", "Profile", "Hour", "Day", "Lock", "Updated"})

	locked := 0
	for _, row := range rows {
		rule, profile := row.RuleID, row.ProfileID
		if rule == "" {
			rule, profile = row.Key, "-"
		}
		if row.Locked {
			locked++
		}
		t.AppendRow(table.Row{rule, profile, row.HourCount, row.DayCount, lockLabel(row.Locked), updatedLabel(row)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d row(s)", len(rows)), "", "", fmt.Sprintf("%d locked", locked), ""})

	return t.Render(), nil
}

func (f *TableFormatter) FormatRules(rules []RuleRow) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Rule", "Quota"})
	for _, r := range rules {
		quota := "no"
		if r.Quota {
			quota = "yes"
		}
		t.AppendRow(table.Row{r.ID, r.Name, quota})
	}
	return t.Render(), nil
}
