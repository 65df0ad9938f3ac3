package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatRows(rows []LedgerRow) (string, error) {
	if rows == nil {
		rows = []LedgerRow{}
	}
	return f.marshal(rows)
}

func (f *JSONFormatter) FormatRules(rules []RuleRow) (string, error) {
	if rules == nil {
		rules = []RuleRow{}
	}
	return f.marshal(rules)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
