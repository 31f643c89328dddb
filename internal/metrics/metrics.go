// Package metrics implements the RequestMetric/BackendStats observer hook
// of SPEC_FULL.md §3: per-backend latency percentiles and error rates,
// decoupled from the core Provider/Registry contracts. The only caller is
// the CLI's run command, which records one sample per run after the
// conversation loop returns. Grounded on sebastianxbutler-godex's
// pkg/metrics/collector.go for the in-process percentile aggregation
// (sorted-sample p50/p95/p99, ring-buffered to the last 1000 samples per
// backend) and on haasonsaas-nexus's internal/observability/metrics.go for
// the optional Prometheus exporter (promauto-registered CounterVec/
// HistogramVec), so the same Record call drives both the file-backed
// aggregation and, when enabled, the Prometheus vectors. The vectors are
// registered on the default Prometheus registry only; no HTTP handler in
// this module serves them at /metrics.
package metrics

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestMetric records one adapter-boundary LLM request.
type RequestMetric struct {
	Timestamp time.Time     `json:"ts"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Latency   time.Duration `json:"-"`
	Status    string        `json:"status"` // "ok", "error"
	Error     string        `json:"error,omitempty"`
	TokensIn  int           `json:"tokens_in,omitempty"`
	TokensOut int           `json:"tokens_out,omitempty"`
}

// MarshalJSON renders Latency in milliseconds, matching the teacher's
// RequestMetric.MarshalJSON.
func (m RequestMetric) MarshalJSON() ([]byte, error) {
	type alias RequestMetric
	return json.Marshal(&struct {
		alias
		LatencyMs int64 `json:"latency_ms"`
	}{alias: alias(m), LatencyMs: m.Latency.Milliseconds()})
}

// BackendStats holds aggregated stats for one provider.
type BackendStats struct {
	Provider    string  `json:"provider"`
	Requests    int64   `json:"requests"`
	Errors      int64   `json:"errors"`
	LatencyP50  int64   `json:"latency_p50_ms"`
	LatencyP95  int64   `json:"latency_p95_ms"`
	LatencyP99  int64   `json:"latency_p99_ms"`
	TotalTokens int64   `json:"total_tokens"`
	ErrorRate   float64 `json:"error_rate"`
}

// Config configures a Collector.
type Config struct {
	Enabled     bool
	LogPath     string // newline-delimited JSON of every RequestMetric, when set
	Prometheus  bool   // register the promauto vectors below
}

// Collector aggregates RequestMetric samples in-process and, when
// configured, mirrors them onto Prometheus vectors.
type Collector struct {
	mu          sync.RWMutex
	enabled     bool
	file        *os.File
	latencies   map[string][]int64
	requests    map[string]int64
	errors      map[string]int64
	totalTokens map[string]int64

	prom *promVectors
}

// promVectors holds the Prometheus collectors registered for this
// process, mirroring the field set of nexus's observability.Metrics but
// scoped to the adapter-boundary concerns this package owns.
type promVectors struct {
	requestDuration *prometheus.HistogramVec
	requestCounter  *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
}

func newPromVectors() *promVectors {
	return &promVectors{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeforge_llm_request_duration_seconds",
				Help:    "Duration of LLM provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		requestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_llm_requests_total",
				Help: "Total number of LLM provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		tokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeforge_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
	}
}

// NewCollector constructs a Collector per cfg. A disabled Collector's
// Record is a no-op, so callers can wire it unconditionally.
func NewCollector(cfg Config) (*Collector, error) {
	c := &Collector{
		enabled:     cfg.Enabled,
		latencies:   make(map[string][]int64),
		requests:    make(map[string]int64),
		errors:      make(map[string]int64),
		totalTokens: make(map[string]int64),
	}

	if cfg.Enabled && cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		c.file = f
	}
	if cfg.Enabled && cfg.Prometheus {
		c.prom = newPromVectors()
	}

	return c, nil
}

// Record records one request, updating in-process aggregates and, when
// configured, the Prometheus vectors and the log file.
func (c *Collector) Record(m RequestMetric) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	c.requests[m.Provider]++
	if m.Status == "error" {
		c.errors[m.Provider]++
	}
	c.totalTokens[m.Provider] += int64(m.TokensIn + m.TokensOut)

	latencyMs := m.Latency.Milliseconds()
	samples := c.latencies[m.Provider]
	if len(samples) >= 1000 {
		samples = samples[1:]
	}
	c.latencies[m.Provider] = append(samples, latencyMs)

	if c.file != nil {
		data, err := json.Marshal(m)
		if err == nil {
			c.file.Write(append(data, '\n'))
		}
	}
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.requestDuration.WithLabelValues(m.Provider, m.Model).Observe(m.Latency.Seconds())
		c.prom.requestCounter.WithLabelValues(m.Provider, m.Model, m.Status).Inc()
		if m.TokensIn > 0 {
			c.prom.tokensUsed.WithLabelValues(m.Provider, m.Model, "prompt").Add(float64(m.TokensIn))
		}
		if m.TokensOut > 0 {
			c.prom.tokensUsed.WithLabelValues(m.Provider, m.Model, "completion").Add(float64(m.TokensOut))
		}
	}
}

// Stats returns aggregated stats for every provider seen so far.
func (c *Collector) Stats() map[string]*BackendStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*BackendStats, len(c.requests))
	for provider := range c.requests {
		stats := &BackendStats{
			Provider:    provider,
			Requests:    c.requests[provider],
			Errors:      c.errors[provider],
			TotalTokens: c.totalTokens[provider],
		}
		if stats.Requests > 0 {
			stats.ErrorRate = float64(stats.Errors) / float64(stats.Requests)
		}
		if samples := c.latencies[provider]; len(samples) > 0 {
			sorted := make([]int64, len(samples))
			copy(sorted, samples)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			stats.LatencyP50 = percentile(sorted, 50)
			stats.LatencyP95 = percentile(sorted, 95)
			stats.LatencyP99 = percentile(sorted, 99)
		}
		result[provider] = stats
	}
	return result
}

// Close closes the log file, if one was opened.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) * p) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
