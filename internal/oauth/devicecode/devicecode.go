// Package devicecode implements the device-authorization OAuth flow of
// spec §4.3's device-code path: request a device/user code pair, show it
// to the user, then poll the token endpoint until the user authorizes (or
// the grant expires/is denied). No pack example implements this flow
// directly (godex only carries PKCE and refresh-grant logic in
// pkg/backend/anthropic/auth.go), so this package is grounded on the same
// net/http + encoding/json conventions that flow uses rather than any
// third-party client: no pack library exposes a device-code client, and
// hand-rolling a short request/poll loop against the standard library
// matches the teacher's own style for its other two OAuth legs.
package devicecode

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
)

// Config describes one vendor's device-authorization endpoints.
type Config struct {
	ClientID      string
	DeviceCodeURL string
	TokenURL      string
	Scopes        []string
}

// Authorization is the device/user code pair returned by the initial
// request, to be displayed to the user.
type Authorization struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int
	Interval        int
}

// RequestAuthorization starts the flow by requesting a device/user code
// pair, per spec §4.3's device-code step 1.
func RequestAuthorization(ctx context.Context, cfg Config) (Authorization, error) {
	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	if len(cfg.Scopes) > 0 {
		for _, s := range cfg.Scopes {
			form.Add("scope", s)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.DeviceCodeURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return Authorization{}, errs.Wrap(errs.KindInternal, "build device code request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Authorization{}, errs.Wrap(errs.KindTransientNetwork, "device code request failed", err)
	}
	defer resp.Body.Close()

	var dr struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return Authorization{}, errs.Wrap(errs.KindAuthentication, "decode device code response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || dr.DeviceCode == "" {
		return Authorization{}, errs.New(errs.KindAuthentication, "device code request rejected")
	}
	if dr.Interval <= 0 {
		dr.Interval = 5
	}

	return Authorization{
		DeviceCode:      dr.DeviceCode,
		UserCode:        dr.UserCode,
		VerificationURI: dr.VerificationURI,
		ExpiresIn:       dr.ExpiresIn,
		Interval:        dr.Interval,
	}, nil
}

// pollResult is the token endpoint's response shape during polling; a
// non-empty Error with value "authorization_pending" or "slow_down" means
// keep polling, any other non-empty Error is terminal.
type pollResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
}

// Poll repeatedly exercises the token endpoint at auth.Interval until the
// user authorizes, the grant expires, or the server reports a terminal
// failure, per spec §4.3's device-code step 2. On success the resulting
// tokens are persisted under providerID.
func Poll(ctx context.Context, cfg Config, auth Authorization, store *credstore.Store, providerID string) error {
	interval := time.Duration(auth.Interval) * time.Second
	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindAborted, "device code polling cancelled", ctx.Err())
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return errs.New(errs.KindAuthentication, "device code expired before authorization")
		}

		result, done, err := pollOnce(ctx, cfg, auth.DeviceCode)
		if err != nil {
			return err
		}
		if !done {
			if result.Error == "slow_down" {
				interval += 5 * time.Second
				ticker.Reset(interval)
			}
			continue
		}

		expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second).Unix()
		return store.Set(providerID, credstore.Record{
			Type:      credstore.TypeOAuth,
			Access:    result.AccessToken,
			Refresh:   result.RefreshToken,
			ExpiresAt: &expiresAt,
		})
	}
}

// pollOnce exercises the token endpoint once. done is true once a
// terminal outcome (success or hard failure) is reached.
func pollOnce(ctx context.Context, cfg Config, deviceCode string) (pollResult, bool, error) {
	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("device_code", deviceCode)
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return pollResult{}, false, errs.Wrap(errs.KindInternal, "build device token poll request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return pollResult{}, false, errs.Wrap(errs.KindTransientNetwork, "device token poll failed", err)
	}
	defer resp.Body.Close()

	var result pollResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pollResult{}, false, errs.Wrap(errs.KindAuthentication, "decode device token poll response", err)
	}

	switch result.Error {
	case "":
		if result.AccessToken == "" {
			return result, false, errs.New(errs.KindAuthentication, "device token poll returned no access token")
		}
		return result, true, nil
	case "authorization_pending", "slow_down":
		return result, false, nil
	default:
		return result, false, errs.New(errs.KindAuthentication, "device authorization failed: "+result.Error)
	}
}

// ExchangeForServiceToken trades a bearer access token for a
// service-specific token on a second hop, for vendors (e.g. GitHub Apps)
// that issue a short-lived installation token from an OAuth user token.
func ExchangeForServiceToken(ctx context.Context, exchangeURL, bearerToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, exchangeURL, nil)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "build service token exchange request", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindTransientNetwork, "service token exchange failed", err)
	}
	defer resp.Body.Close()

	var tr struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", errs.Wrap(errs.KindAuthentication, "decode service token exchange response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || tr.Token == "" {
		return "", errs.New(errs.KindAuthentication, "service token exchange rejected")
	}
	return tr.Token, nil
}
