// Package codex implements llm.Provider against the ChatGPT backend-api
// "Responses" endpoint. Grounded on sebastianxbutler-godex's
// pkg/backend/codex/client.go: the same base URL, originator/session
// headers, retry-then-refresh-on-401 request loop, and SSE event stream,
// retargeted from that package's protocol.ResponsesRequest/pkg/auth.Store
// onto this module's canonical internal/llm types and internal/credstore.
package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/llm"
	"github.com/codeforge/codeforge/internal/sse"
)

const (
	providerID     = "codex"
	defaultBaseURL = "https://chatgpt.com/backend-api/codex"
	refreshTokenURL = "https://auth.openai.com/oauth/token"
	refreshClientID = "app_EMoamEEZ73f0CkXaXp7hrann"
)

// Provider implements llm.Provider for the Codex/ChatGPT backend.
type Provider struct {
	Store      *credstore.Store
	HTTPClient *http.Client
	BaseURL    string
	Originator string
	Retry      llm.RetryConfig
	Coalescer  *llm.RefreshCoalescer
}

// New constructs a Codex provider backed by store for OAuth token
// resolution and refresh.
func New(store *credstore.Store) *Provider {
	return &Provider{
		Store:      store,
		HTTPClient: http.DefaultClient,
		BaseURL:    defaultBaseURL,
		Originator: "codeforge_cli",
		Retry:      llm.DefaultRetryConfig(),
		Coalescer:  llm.NewRefreshCoalescer(),
	}
}

func (p *Provider) ProviderID() string { return providerID }

func (p *Provider) SupportsCapability(cap llm.Capability) bool {
	switch cap {
	case llm.CapabilityToolCall, llm.CapabilityStreaming:
		return true
	default:
		return false
	}
}

func (p *Provider) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{ID: "gpt-5.3-codex", ContextLimit: 400_000, SupportsToolCall: true, SupportsStreaming: true},
		{ID: "gpt-5.2-codex", ContextLimit: 400_000, SupportsToolCall: true, SupportsStreaming: true},
		{ID: "o3", ContextLimit: 200_000, SupportsToolCall: true, SupportsStreaming: true},
	}, nil
}

// Refresh exchanges the stored refresh token for a new access token via
// the same auth.openai.com grant godex's pkg/auth.Store uses.
func (p *Provider) Refresh(ctx context.Context) error {
	rec, ok, err := p.Store.Get(providerID)
	if err != nil {
		return err
	}
	if !ok || rec.Type != credstore.TypeOAuth || rec.Refresh == "" {
		return errs.New(errs.KindAuthentication, "no refresh token on file for codex")
	}

	body, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": rec.Refresh,
		"client_id":     refreshClientID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshTokenURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindTransientNetwork, "codex refresh request failed", err)
	}
	defer resp.Body.Close()

	var rr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return errs.Wrap(errs.KindAuthentication, "decode codex refresh response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || rr.AccessToken == "" {
		return errs.New(errs.KindAuthentication, "codex refresh rejected")
	}

	refresh := rec.Refresh
	if rr.RefreshToken != "" {
		refresh = rr.RefreshToken
	}
	expiresAt := time.Now().Add(time.Duration(rr.ExpiresIn) * time.Second).Unix()
	return p.Store.Set(providerID, credstore.Record{
		Type:      credstore.TypeOAuth,
		Access:    rr.AccessToken,
		Refresh:   refresh,
		ExpiresAt: &expiresAt,
	})
}

func (p *Provider) accessToken(ctx context.Context) (string, error) {
	rec, ok, err := p.Store.Get(providerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.New(errs.KindAuthentication, "no credentials stored for codex")
	}
	if rec.IsExpired(time.Now()) {
		if err := p.Coalescer.Do(ctx, providerID, p); err != nil {
			return "", err
		}
		rec, _, err = p.Store.Get(providerID)
		if err != nil {
			return "", err
		}
	}
	return rec.Access, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	toolArgs := map[string]*[]byte{}
	var toolCalls []llm.ToolCall

	err := p.Stream(ctx, req, func(d llm.StreamDelta) error {
		resp.Content += d.TextDelta
		if d.ToolCallDelta != nil {
			id := d.ToolCallDelta.ID
			if _, ok := toolArgs[id]; !ok {
				toolCalls = append(toolCalls, llm.ToolCall{ID: id, Name: d.ToolCallDelta.Name})
				buf := []byte{}
				toolArgs[id] = &buf
			}
			*toolArgs[id] = append(*toolArgs[id], d.ToolCallDelta.Arguments...)
		}
		if d.Usage != nil {
			resp.Usage = *d.Usage
		}
		if d.FinishReason != "" {
			resp.FinishReason = d.FinishReason
		}
		return nil
	})
	if err != nil {
		return llm.Response{}, err
	}
	for i := range toolCalls {
		toolCalls[i].Arguments = json.RawMessage(*toolArgs[toolCalls[i].ID])
	}
	resp.ToolCalls = toolCalls
	return resp, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error {
	return llm.WithAuthRefresh(ctx, providerID, p.Coalescer, p, func(ctx context.Context) error {
		return llm.WithRetry(ctx, p.Retry, func(ctx context.Context) error {
			return p.streamOnce(ctx, req, onDelta)
		})
	})
}

func (p *Provider) streamOnce(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	wireReq := translateRequest(req)
	payload, err := json.Marshal(wireReq)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encode codex request", err)
	}

	url := strings.TrimRight(p.BaseURL, "/") + "/responses"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(errs.KindInternal, "build codex request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("originator", p.Originator)

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return errs.Wrap(errs.KindTransientNetwork, "codex request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
		kind := llm.ClassifyHTTPStatus(resp.StatusCode)
		if kind == "" {
			kind = errs.KindTransientNetwork
		}
		return errs.New(kind, "codex request failed: "+strings.TrimSpace(string(body)))
	}

	tracker := newToolCallTracker()
	return sse.Parse(resp.Body, func(raw sse.RawEvent) error {
		var ev wireStreamEvent
		if err := json.Unmarshal(raw.Data, &ev); err != nil {
			return nil
		}
		for _, d := range translateStreamEvent(ev, tracker) {
			if err := onDelta(d); err != nil {
				return err
			}
		}
		return nil
	})
}
