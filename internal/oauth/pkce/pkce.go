// Package pkce implements the Anthropic-style PKCE OAuth flow of spec
// §4.3: generate a verifier/challenge pair, build the authorize URL, then
// exchange the user-pasted authorization code for tokens. Grounded on
// sebastianxbutler-godex's pkg/backend/anthropic/auth.go, whose
// OAuthClientID/OAuthTokenURL constants and refresh-grant request/response
// shape this package generalizes to also perform the initial code
// exchange (the teacher's auth.go only implements the refresh leg).
package pkce

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
)

// Config describes one vendor's PKCE endpoints and client identity.
type Config struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
}

// AnthropicConfig returns the Claude Code OAuth app's PKCE configuration,
// matching godex's anthropic.OAuthClientID/OAuthTokenURL constants.
func AnthropicConfig() Config {
	return Config{
		ClientID:     "9d1c250a-e61b-44d9-88ed-5944d1962f5e",
		AuthorizeURL: "https://claude.ai/oauth/authorize",
		TokenURL:     "https://console.anthropic.com/v1/oauth/token",
		RedirectURI:  "https://console.anthropic.com/oauth/code/callback",
		Scopes:       []string{"org:create_api_key", "user:profile", "user:inference"},
	}
}

// Challenge holds a generated verifier/challenge pair and the state value
// bound to it.
type Challenge struct {
	Verifier  string
	Challenge string
	State     string
}

// NewChallenge generates a verifier (32 bytes of randomness, base64url
// without padding) and its S256 challenge, per spec §4.3 step 1-2.
func NewChallenge() (Challenge, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return Challenge{}, errs.Wrap(errs.KindInternal, "generate pkce verifier", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return Challenge{Verifier: verifier, Challenge: challenge, State: verifier}, nil
}

// AuthorizeURL builds the vendor authorize URL the user opens in a
// browser, per spec §4.3 step 3.
func AuthorizeURL(cfg Config, ch Challenge) string {
	q := url.Values{}
	q.Set("code", "true")
	q.Set("client_id", cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", cfg.RedirectURI)
	q.Set("scope", strings.Join(cfg.Scopes, " "))
	q.Set("code_challenge", ch.Challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", ch.State)
	return cfg.AuthorizeURL + "?" + q.Encode()
}

// ParsePastedCode strips the '#state' fragment GitHub/Anthropic-style
// authorize callbacks append to the pasted code, per spec §4.3 step 4.
func ParsePastedCode(pasted string) (code, state string) {
	pasted = strings.TrimSpace(pasted)
	if idx := strings.Index(pasted, "#"); idx >= 0 {
		return pasted[:idx], pasted[idx+1:]
	}
	return pasted, ""
}

// Exchange trades the pasted authorization code and its verifier for an
// access/refresh token pair, persisting the result under providerID.
func Exchange(ctx context.Context, cfg Config, ch Challenge, code string, store *credstore.Store, providerID string) error {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"state":         ch.State,
		"client_id":     cfg.ClientID,
		"redirect_uri":  cfg.RedirectURI,
		"code_verifier": ch.Verifier,
	})
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encode pkce exchange request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindInternal, "build pkce exchange request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindTransientNetwork, "pkce exchange request failed", err)
	}
	defer resp.Body.Close()

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return errs.Wrap(errs.KindAuthentication, "decode pkce exchange response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || tr.AccessToken == "" {
		detail := tr.ErrorDesc
		if detail == "" {
			detail = tr.Error
		}
		return errs.New(errs.KindAuthentication, "pkce exchange rejected: "+detail)
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second).Unix()
	return store.Set(providerID, credstore.Record{
		Type:      credstore.TypeOAuth,
		Access:    tr.AccessToken,
		Refresh:   tr.RefreshToken,
		ExpiresAt: &expiresAt,
	})
}
