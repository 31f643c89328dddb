// Package httpclient builds the pooled *http.Client shared by adapters
// and tools. By default it allows at most 20 connections per host, keeps
// at most 10 idle connections, closes idle connections after 5 minutes,
// times requests out after 60 s, and applies a configurable per-host rate
// limit. There is no cap on the total number of connections across all
// hosts; the 20-connection limit applies to each host separately.
// No single pack file centralizes this; it is modeled on the
// net/http.Transport tuning idiom visible across the pack's own
// config-struct-with-sane-defaults pattern (haasonsaas-nexus's
// cockroach.go DB pool configs: a Config struct, a Default constructor,
// applied via explicit Set calls), and wraps internal/ratelimit for the
// per-host token bucket spec.md §5 calls out.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/codeforge/codeforge/internal/ratelimit"
)

// Config tunes the shared transport. Zero values fall back to spec.md
// §5's stated defaults via New.
type Config struct {
	MaxIdleConns        int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	RequestTimeout      time.Duration
	RateLimit           ratelimit.Config // per-host outbound rate limit
}

// DefaultConfig returns spec.md §5's literal limits.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:    10,
		MaxConnsPerHost: 20,
		IdleConnTimeout: 5 * time.Minute,
		RequestTimeout:  60 * time.Second,
		RateLimit:       ratelimit.DefaultConfig(),
	}
}

// Client wraps a pooled *http.Client with a per-host rate limiter applied
// before every request leaves the process.
type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
}

// New constructs a Client from cfg, filling zero fields with
// DefaultConfig's values.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = def.RateLimit
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		http:    &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		limiter: ratelimit.NewLimiter(cfg.RateLimit),
	}
}

// Do waits for a rate-limit token keyed by the request's host, then
// issues req through the pooled transport.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context(), req.URL.Hostname()); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// StdClient exposes the underlying *http.Client for callers (e.g. vendor
// SDK constructors) that require one directly rather than going through
// Do's rate limiting.
func (c *Client) StdClient() *http.Client {
	return c.http
}

// WaitFor blocks until a rate-limit token for host is available or ctx is
// done, for callers that issue requests through a different client but
// still want this pool's per-host ceiling enforced.
func (c *Client) WaitFor(ctx context.Context, host string) error {
	return c.limiter.Wait(ctx, host)
}
