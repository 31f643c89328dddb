package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
)

// exchangeRefreshToken posts the OAuth refresh grant, mirroring godex's
// pkg/backend/anthropic/auth.go TokenStore.Refresh.
func exchangeRefreshToken(ctx context.Context, refreshToken string) (credstore.Record, error) {
	body := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     OAuthClientID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return credstore.Record{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, OAuthTokenURL, bytes.NewReader(payload))
	if err != nil {
		return credstore.Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return credstore.Record{}, err
	}
	defer resp.Body.Close()

	var rr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return credstore.Record{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := rr.ErrorDesc
		if detail == "" {
			detail = rr.Error
		}
		return credstore.Record{}, errs.New(errs.KindAuthentication, "refresh rejected: "+detail)
	}
	if rr.AccessToken == "" {
		return credstore.Record{}, errs.New(errs.KindAuthentication, "refresh response missing access_token")
	}

	expiresAt := time.Now().Add(time.Duration(rr.ExpiresIn) * time.Second).Unix()
	refresh := refreshToken
	if rr.RefreshToken != "" {
		refresh = rr.RefreshToken
	}
	return credstore.Record{
		Type:      credstore.TypeOAuth,
		Access:    rr.AccessToken,
		Refresh:   refresh,
		ExpiresAt: &expiresAt,
	}, nil
}
