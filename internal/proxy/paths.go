package proxy

import (
	"os"
	"path/filepath"
)

// DefaultKeysPath is where the proxy's admin.KeyStore persists provisioned
// API keys when no explicit path is configured.
func DefaultKeysPath() string {
	return filepath.Join(defaultStateDir(), "proxy-keys.json")
}

// DefaultStatsPath is the default per-event usage log.
func DefaultStatsPath() string {
	return filepath.Join(defaultStateDir(), "proxy-usage.jsonl")
}

// DefaultStatsSummaryPath is the default aggregated usage summary file.
func DefaultStatsSummaryPath() string {
	return filepath.Join(defaultStateDir(), "proxy-usage.json")
}

// DefaultEventsPath is the default key lifecycle event log.
func DefaultEventsPath() string {
	return filepath.Join(defaultStateDir(), "proxy-events.jsonl")
}

// DefaultAuditPath is the default request/response audit log.
func DefaultAuditPath() string {
	return filepath.Join(defaultStateDir(), "proxy-audit.jsonl")
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".codeforge")
	}
	return "."
}
