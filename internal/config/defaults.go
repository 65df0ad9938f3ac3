package config

// DefaultExpirySecs is the lock expiry used when none is configured. A
// request round trip times out after 60s; 30s more covers clock skew.
const DefaultExpirySecs = 90.0

// DefaultTable is the durable store table name.
const DefaultTable = "vals"

func defaultValues() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "localhost",
			"port":             8080,
			"read_timeout":     "30s",
			"write_timeout":    "30s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
		},
		"store": map[string]any{
			"driver":     "",
			"path":       "",
			"url":        "",
			"auth_token": "",
			"table":      DefaultTable,
		},
		"ledger": map[string]any{
			"expiry_secs": DefaultExpirySecs,
			"persistent":  false,
		},
		"logging": map[string]any{
			"level":   "info",
			"profile": "SIMPLE",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
		"debug": map[string]any{
			"enabled": false,
		},
		"rules": []any{},
	}
}
