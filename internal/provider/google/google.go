// Package google implements llm.Provider against the Gemini API via
// google.golang.org/genai. Grounded on haasonsaas-nexus's
// internal/agent/providers/google.go GoogleProvider: the same
// genai.NewClient construction, Models.GenerateContentStream iterator
// walk (part.Text / part.FunctionCall accumulation), and
// genai.Content/genai.Part message shape, retargeted onto this module's
// canonical internal/llm types and internal/credstore for API-key
// resolution.
package google

import (
	"context"
	"encoding/json"

	"google.golang.org/genai"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/llm"
)

const providerID = "google"

// Provider implements llm.Provider for Gemini.
type Provider struct {
	Store *credstore.Store
	Retry llm.RetryConfig
}

// New constructs a Google provider backed by store for API-key
// resolution. Gemini's public API key does not expire, so Refresh is a
// no-op satisfying llm.Refresher.
func New(store *credstore.Store) *Provider {
	return &Provider{Store: store, Retry: llm.DefaultRetryConfig()}
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

func (p *Provider) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{ID: "gemini-3.0-pro", ContextLimit: 2_000_000, SupportsToolCall: true, SupportsVision: true, SupportsStreaming: true},
		{ID: "gemini-3.0-flash", ContextLimit: 1_000_000, SupportsToolCall: true, SupportsVision: true, SupportsStreaming: true},
	}, nil
}

func (p *Provider) Refresh(_ context.Context) error { return nil }

func (p *Provider) client(ctx context.Context) (*genai.Client, error) {
	rec, ok, err := p.Store.Get(providerID)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Key == "" {
		return nil, errs.New(errs.KindAuthentication, "no API key stored for google")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{APIKey: rec.Key})
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
	return llm.WithRetry(ctx, p.Retry, func(ctx context.Context) error {
		return p.streamOnce(ctx, req, onDelta)
	})
}

func (p *Provider) streamOnce(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error {
	client, err := p.client(ctx)
	if err != nil {
		return err
	}

	contents := translateMessages(req.Messages)
	config := buildConfig(req)

	streamIter := client.Models.GenerateContentStream(ctx, req.Model, contents, config)

	for resp, err := range streamIter {
		if err != nil {
			return classifyErr(err)
		}
		if resp == nil {
			continue
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					if err := onDelta(llm.StreamDelta{TextDelta: part.Text}); err != nil {
						return err
					}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					if err := onDelta(llm.StreamDelta{ToolCallDelta: &llm.ToolCall{
						ID: part.FunctionCall.Name, Name: part.FunctionCall.Name, Arguments: argsJSON,
					}}); err != nil {
						return err
					}
				}
			}
			if candidate.FinishReason != "" {
				if err := onDelta(llm.StreamDelta{FinishReason: mapFinishReason(string(candidate.FinishReason))}); err != nil {
					return err
				}
			}
		}
		if resp.UsageMetadata != nil {
			if err := onDelta(llm.StreamDelta{Usage: &llm.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}}); err != nil {
				return err
			}
		}
	}

	return nil
}

func classifyErr(err error) error {
	return errs.Wrap(errs.KindTransientNetwork, "google request failed", err)
}

func mapFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "STOP":
		return llm.FinishStop
	case "MAX_TOKENS":
		return llm.FinishLength
	case "SAFETY", "RECITATION":
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}
