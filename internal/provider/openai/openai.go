// Package openai implements llm.Provider against the OpenAI Chat
// Completions API via github.com/sashabaranov/go-openai. Grounded on
// haasonsaas-nexus's internal/agent/providers/azure.go and
// copilot_proxy.go, the pack's two direct users of that client: the same
// openai.NewClientWithConfig construction, CreateChatCompletionStream
// call, and per-index tool-call-delta accumulation loop, retargeted onto
// this module's canonical internal/llm types and internal/credstore.
package openai

import (
	"context"
	"encoding/json"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/llm"
)

const providerID = "openai"

// Provider implements llm.Provider for OpenAI-compatible chat APIs.
type Provider struct {
	Store     *credstore.Store
	BaseURL   string // empty uses the client default (api.openai.com)
	Retry     llm.RetryConfig
	Coalescer *llm.RefreshCoalescer
}

// New constructs an OpenAI provider backed by store for API-key
// resolution. OpenAI's public API uses long-lived API keys, not OAuth
// refresh tokens, so Refresh is a no-op satisfying llm.Refresher.
func New(store *credstore.Store) *Provider {
	return &Provider{Store: store, Retry: llm.DefaultRetryConfig(), Coalescer: llm.NewRefreshCoalescer()}
}

func (p *Provider) ProviderID() string { return providerID }

func (p *Provider) SupportsCapability(cap llm.Capability) bool {
	switch cap {
	case llm.CapabilityToolCall, llm.CapabilityStreaming, llm.CapabilityVision, llm.CapabilityJSONMode:
		return true
	default:
		return false
	}
}

func (p *Provider) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{ID: "gpt-5.2", ContextLimit: 400_000, SupportsToolCall: true, SupportsVision: true, SupportsStreaming: true},
		{ID: "gpt-5.2-mini", ContextLimit: 400_000, SupportsToolCall: true, SupportsVision: true, SupportsStreaming: true},
		{ID: "o4-mini", ContextLimit: 200_000, SupportsToolCall: true, SupportsVision: false, SupportsStreaming: true},
	}, nil
}

// Refresh is a no-op: OpenAI API keys do not expire on a refresh grant.
func (p *Provider) Refresh(_ context.Context) error { return nil }

func (p *Provider) client() (*openai.Client, error) {
	rec, ok, err := p.Store.Get(providerID)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Key == "" {
		return nil, errs.New(errs.KindAuthentication, "no API key stored for openai")
	}
	cfg := openai.DefaultConfig(rec.Key)
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	client := openai.NewClientWithConfig(cfg)
	return client, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	client, err := p.client()
	if err != nil {
		return llm.Response{}, err
	}
	chatReq := translateRequest(req)
	chatReq.Stream = false

	var resp openai.ChatCompletionResponse
	err = llm.WithRetry(ctx, p.Retry, func(ctx context.Context) error {
		r, callErr := client.CreateChatCompletion(ctx, chatReq)
		if callErr != nil {
			return classifyErr(callErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return llm.Response{}, err
	}
	return translateResponse(resp), nil
}

func (p *Provider) Stream(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error {
	return llm.WithRetry(ctx, p.Retry, func(ctx context.Context) error {
		return p.streamOnce(ctx, req, onDelta)
	})
}

func (p *Provider) streamOnce(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error {
	client, err := p.client()
	if err != nil {
		return err
	}
	chatReq := translateRequest(req)
	chatReq.Stream = true

	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return classifyErr(err)
	}
	defer stream.Close()

	type pendingCall struct {
		id, name string
	}
	byIndex := make(map[int]*pendingCall)

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return classifyErr(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if err := onDelta(llm.StreamDelta{TextDelta: delta.Content}); err != nil {
				return err
			}
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			pc, ok := byIndex[index]
			if !ok {
				pc = &pendingCall{}
				byIndex[index] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if err := onDelta(llm.StreamDelta{
				ToolCallDelta: &llm.ToolCall{ID: pc.id, Name: pc.name, Arguments: json.RawMessage(tc.Function.Arguments)},
			}); err != nil {
				return err
			}
		}
		if choice.FinishReason != "" {
			if err := onDelta(llm.StreamDelta{FinishReason: mapFinishReason(choice.FinishReason)}); err != nil {
				return err
			}
		}
		if chunk.Usage != nil {
			if err := onDelta(llm.StreamDelta{Usage: &llm.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}}); err != nil {
				return err
			}
		}
	}
}

func classifyErr(err error) error {
	if apiErr, ok := err.(*openai.APIError); ok {
		kind := llm.ClassifyHTTPStatus(apiErr.HTTPStatusCode)
		if kind == "" {
			kind = errs.KindTransientNetwork
		}
		return errs.Wrap(kind, "openai request failed", err)
	}
	return errs.Wrap(errs.KindTransientNetwork, "openai request failed", err)
}

func mapFinishReason(reason openai.FinishReason) llm.FinishReason {
	switch reason {
	case openai.FinishReasonStop:
		return llm.FinishStop
	case openai.FinishReasonLength:
		return llm.FinishLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return llm.FinishToolUse
	case openai.FinishReasonContentFilter:
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}
