package proxy

import (
	"strings"
	"time"

	"github.com/codeforge/codeforge/internal/payments"
)

// Config controls the OpenAI-compatible proxy's runtime behavior, kept
// from the teacher's pkg/proxy.Config with the Codex/Anthropic-specific
// BackendsConfig/RoutingConfig removed — model-to-provider resolution is
// now internal/registry.Registry's job, not the proxy's.
type Config struct {
	Listen      string
	AllowAnyKey bool
	KeysPath    string
	AdminSocket string

	RateLimit   string
	Burst       int
	QuotaTokens int64

	StatsPath       string
	StatsSummary    string
	StatsMaxBytes   int64
	StatsMaxBackups int
	EventsPath      string
	EventsMaxBytes  int64
	EventsBackups   int
	MeterWindow     time.Duration

	AuditPath       string
	AuditMaxBytes   int64
	AuditMaxBackups int

	LogLevel    string
	LogRequests bool

	Payments payments.Config
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8787"
	}
	if strings.TrimSpace(c.KeysPath) == "" {
		c.KeysPath = DefaultKeysPath()
	}
	if strings.TrimSpace(c.StatsSummary) == "" {
		c.StatsSummary = DefaultStatsSummaryPath()
	}
	if c.StatsMaxBytes == 0 {
		c.StatsMaxBytes = 10 * 1024 * 1024
	}
	if c.StatsMaxBackups == 0 {
		c.StatsMaxBackups = 3
	}
	if strings.TrimSpace(c.EventsPath) == "" {
		c.EventsPath = DefaultEventsPath()
	}
	if c.EventsMaxBytes == 0 {
		c.EventsMaxBytes = 1024 * 1024
	}
	if c.EventsBackups == 0 {
		c.EventsBackups = 3
	}
	if strings.TrimSpace(c.RateLimit) == "" {
		c.RateLimit = "60/m"
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
}
