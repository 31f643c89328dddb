// Package anthropic implements llm.Provider against the Anthropic Messages
// API. Grounded on sebastianxbutler-godex's pkg/backend/anthropic package:
// the same anthropic-sdk-go client construction and streaming-event walk,
// retargeted from that package's protocol.ResponsesRequest/sse.Event wire
// shapes onto this module's canonical internal/llm types, and from its
// single-provider TokenStore onto the shared internal/credstore.Store.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/llm"
)

const providerID = "anthropic"

// OAuthClientID and OAuthTokenURL mirror the Claude Code OAuth app used to
// mint the tokens codeforge's PKCE login flow stores in credstore.
const (
	OAuthClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	OAuthTokenURL = "https://console.anthropic.com/v1/oauth/token"
)

// Provider implements llm.Provider for Anthropic.
type Provider struct {
	Store     *credstore.Store
	Coalescer *llm.RefreshCoalescer
	Retry     llm.RetryConfig
}

// New constructs an Anthropic provider backed by store for credential
// resolution and refresh.
func New(store *credstore.Store) *Provider {
	return &Provider{
		Store:     store,
		Coalescer: llm.NewRefreshCoalescer(),
		Retry:     llm.DefaultRetryConfig(),
	}
}

func (p *Provider) ProviderID() string { return providerID }

func (p *Provider) SupportsCapability(cap llm.Capability) bool {
	switch cap {
	case llm.CapabilityToolCall, llm.CapabilityStreaming, llm.CapabilityVision:
		return true
	default:
		return false
	}
}

// ListModels returns a static catalog; Anthropic has no model-discovery
// endpoint reachable with an OAuth personal-use token.
func (p *Provider) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{ID: "claude-opus-4-6-20260115", ContextLimit: 200_000, SupportsToolCall: true, SupportsVision: true, SupportsStreaming: true},
		{ID: "claude-sonnet-4-6-20260115", ContextLimit: 200_000, SupportsToolCall: true, SupportsVision: true, SupportsStreaming: true},
		{ID: "claude-haiku-4-6-20260115", ContextLimit: 200_000, SupportsToolCall: true, SupportsVision: true, SupportsStreaming: true},
	}, nil
}

// Refresh implements llm.Refresher by exchanging the stored refresh token
// for a new access token, following the same grant as godex's
// TokenStore.Refresh.
func (p *Provider) Refresh(ctx context.Context) error {
	rec, ok, err := p.Store.Get(providerID)
	if err != nil {
		return err
	}
	if !ok || rec.Type != credstore.TypeOAuth || rec.Refresh == "" {
		return errs.New(errs.KindAuthentication, "no refresh token on file for anthropic")
	}

	newRec, err := exchangeRefreshToken(ctx, rec.Refresh)
	if err != nil {
		return errs.Wrap(errs.KindAuthentication, "anthropic token refresh failed", err)
	}
	return p.Store.Set(providerID, newRec)
}

func (p *Provider) client(ctx context.Context) (*anthropic.Client, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	c := anthropic.NewClient(option.WithAuthToken(token))
	return &c, nil
}

func (p *Provider) accessToken(ctx context.Context) (string, error) {
	rec, ok, err := p.Store.Get(providerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.New(errs.KindAuthentication, "no credentials stored for anthropic")
	}
	if rec.Type == credstore.TypeAPIKey {
		return rec.Key, nil
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

// Generate performs a non-streaming completion by draining Stream into a
// single aggregated Response, matching godex's StreamAndCollect approach
// since the Messages API treats both as the same underlying call shape.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	var toolCalls []llm.ToolCall
	toolArgs := map[string]*[]byte{}

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

// Stream performs a streaming completion, invoking onDelta per event in
// arrival order. Retries rate-limited/transient failures and retries once
// on authentication failure after a coalesced token refresh, per spec.
func (p *Provider) Stream(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error {
	return llm.WithAuthRefresh(ctx, providerID, p.Coalescer, p, func(ctx context.Context) error {
		return llm.WithRetry(ctx, p.Retry, func(ctx context.Context) error {
			return p.streamOnce(ctx, req, onDelta)
		})
	})
}

func (p *Provider) streamOnce(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error {
	client, err := p.client(ctx)
	if err != nil {
		return err
	}

	params, err := translateRequest(req)
	if err != nil {
		return err
	}

	stream := client.Messages.NewStreaming(ctx, params)

	var currentToolID, currentToolName string
	for stream.Next() {
		event := stream.Current()
		deltas := translateStreamEvent(event, &currentToolID, &currentToolName)
		for _, d := range deltas {
			if err := onDelta(d); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classifyStreamErr(err)
	}
	return nil
}

func classifyStreamErr(err error) error {
	var apiErr *anthropic.Error
	if aerr, ok := err.(*anthropic.Error); ok {
		apiErr = aerr
		kind := llm.ClassifyHTTPStatus(apiErr.StatusCode)
		if kind == "" {
			kind = errs.KindTransientNetwork
		}
		return errs.Wrap(kind, fmt.Sprintf("anthropic request failed (%d)", apiErr.StatusCode), err)
	}
	return errs.Wrap(errs.KindTransientNetwork, "anthropic stream error", err)
}
