// Package payments implements the L402-style token-metering gateway
// kept from the teacher's pkg/payments: a Challenge/Redeem/Pricing
// client against an external token-meter service, reached over HTTP or
// a Unix socket. Generalized only in its transport — it now issues
// requests through internal/httpclient's pooled client instead of
// http.DefaultClient — since the wire protocol itself is already
// provider-agnostic (it meters the proxy's own requests, not any one
// vendor's). internal/proxy's server is its only user (payment challenges,
// redemption and the /v1/pricing endpoint); internal/admin does not
// import it.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/codeforge/codeforge/internal/httpclient"
)

// Config configures a Gateway.
type Config struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Provider      string `json:"provider" yaml:"provider"`
	TokenMeterURL string `json:"token_meter_url" yaml:"token_meter_url"`
}

// Gateway is the narrow surface internal/proxy needs from a
// token-metering backend.
type Gateway interface {
	Enabled() bool
	Challenge(ctx context.Context, purpose, keyID, model, authHeader string) (int, map[string]string, []byte, error)
	Redeem(ctx context.Context, authHeader string) (int, []byte, error)
	Pricing(ctx context.Context) (int, []byte, error)
}

// TokenMeterGateway implements Gateway against an HTTP(S) or
// unix:// token-meter endpoint.
type TokenMeterGateway struct {
	cfg    Config
	client *http.Client
}

// NewTokenMeterGateway constructs a Gateway from cfg, using
// httpclient.DefaultConfig's pooled transport for the non-socket case.
func NewTokenMeterGateway(cfg Config) Gateway {
	return &TokenMeterGateway{cfg: cfg, client: httpclient.New(httpclient.DefaultConfig()).StdClient()}
}

// Enabled reports whether this gateway is configured to meter requests.
func (g *TokenMeterGateway) Enabled() bool {
	return g != nil && g.cfg.Enabled && strings.TrimSpace(g.cfg.TokenMeterURL) != ""
}

// Challenge requests an L402 payment challenge for one metered call.
func (g *TokenMeterGateway) Challenge(ctx context.Context, purpose, keyID, model, authHeader string) (int, map[string]string, []byte, error) {
	if !g.Enabled() {
		return http.StatusUnauthorized, nil, nil, errors.New("payments disabled")
	}
	payload := map[string]string{"purpose": purpose, "key_id": keyID, "model": model, "auth_header": authHeader}
	buf, _ := json.Marshal(payload)
	resp, err := g.post(ctx, "/l402/challenge", buf)
	if err != nil {
		return http.StatusPaymentRequired, nil, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	headers := map[string]string{}
	if wa := resp.Header.Get("WWW-Authenticate"); wa != "" {
		headers["WWW-Authenticate"] = wa
	}
	return resp.StatusCode, headers, body, nil
}

// Redeem exchanges a presented payment proof for metered access.
func (g *TokenMeterGateway) Redeem(ctx context.Context, authHeader string) (int, []byte, error) {
	if !g.Enabled() {
		return http.StatusUnauthorized, nil, errors.New("payments disabled")
	}
	payload := map[string]string{"auth_header": authHeader}
	buf, _ := json.Marshal(payload)
	resp, err := g.post(ctx, "/l402/redeem", buf)
	if err != nil {
		return http.StatusPaymentRequired, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

// Pricing fetches the meter's current price list.
func (g *TokenMeterGateway) Pricing(ctx context.Context) (int, []byte, error) {
	if !g.Enabled() {
		return http.StatusServiceUnavailable, nil, errors.New("payments disabled")
	}
	resp, err := g.get(ctx, "/v1/pricing")
	if err != nil {
		return http.StatusServiceUnavailable, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func (g *TokenMeterGateway) clientAndURL(path string) (*http.Client, string) {
	if strings.HasPrefix(g.cfg.TokenMeterURL, "unix://") {
		sock := strings.TrimPrefix(g.cfg.TokenMeterURL, "unix://")
		client := &http.Client{Transport: &http.Transport{DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return net.Dial("unix", sock)
		}}}
		return client, "http://unix" + path
	}
	return g.client, strings.TrimRight(g.cfg.TokenMeterURL, "/") + path
}

func (g *TokenMeterGateway) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	client, url := g.clientAndURL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

func (g *TokenMeterGateway) get(ctx context.Context, path string) (*http.Response, error) {
	client, url := g.clientAndURL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}
