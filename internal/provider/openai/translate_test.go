package openai

import (
	"encoding/json"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/codeforge/codeforge/internal/llm"
)

func TestTranslateRequest(t *testing.T) {
	temp := 0.5
	req := llm.Request{
		Model:       "gpt-5.2",
		Temperature: &temp,
		MaxTokens:   512,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: "hello"},
		},
	}
	out := translateRequest(req)
	if out.Model != "gpt-5.2" {
		t.Errorf("Model = %q", out.Model)
	}
	if out.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d", out.MaxTokens)
	}
	if out.Temperature != 0.5 {
		t.Errorf("Temperature = %v", out.Temperature)
	}
	if len(out.Messages) != 1 || out.Messages[0].Content != "hello" {
		t.Errorf("Messages = %+v", out.Messages)
	}
}

func TestTranslateMessageToolRole(t *testing.T) {
	msg := llm.Message{Role: llm.RoleTool, ToolCallID: "call_1", Text: "4"}
	out := translateMessage(msg)
	if out.Role != openai.ChatMessageRoleTool {
		t.Errorf("Role = %q, want tool", out.Role)
	}
	if out.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q", out.ToolCallID)
	}
}

func TestTranslateMessageToolCalls(t *testing.T) {
	msg := llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"nyc"}`)},
		},
	}
	out := translateMessage(msg)
	if len(out.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %+v", out.ToolCalls)
	}
	if out.ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("Function.Name = %q", out.ToolCalls[0].Function.Name)
	}
}

func TestTranslateTools(t *testing.T) {
	tools := []llm.ToolDefinition{{
		Name:       "get_weather",
		Parameters: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
	}}
	out := translateTools(tools)
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].Function.Name != "get_weather" {
		t.Errorf("Function.Name = %q", out[0].Function.Name)
	}
}

func TestTranslateToolsDefaultsSchema(t *testing.T) {
	tools := []llm.ToolDefinition{{Name: "noop"}}
	out := translateTools(tools)
	params, ok := out[0].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("expected default object schema, got %+v", out[0].Function.Parameters)
	}
}

func TestTranslateToolChoice(t *testing.T) {
	if got := translateToolChoice(llm.ToolChoice{Mode: "none"}); got != "none" {
		t.Errorf("none = %v", got)
	}
	if got := translateToolChoice(llm.ToolChoice{Mode: "required"}); got != "required" {
		t.Errorf("required = %v", got)
	}
	if got := translateToolChoice(llm.ToolChoice{Mode: "auto"}); got != "auto" {
		t.Errorf("auto = %v", got)
	}
	named, ok := translateToolChoice(llm.ToolChoice{Mode: "named", Name: "add"}).(openai.ToolChoice)
	if !ok || named.Function.Name != "add" {
		t.Errorf("named = %+v", named)
	}
}

func TestTranslateResponse(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		Usage: openai.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "hi there"},
			FinishReason: openai.FinishReasonStop,
		}},
	}
	out := translateResponse(resp)
	if out.Content != "hi there" {
		t.Errorf("Content = %q", out.Content)
	}
	if out.Usage.TotalTokens != 5 {
		t.Errorf("TotalTokens = %d", out.Usage.TotalTokens)
	}
	if out.FinishReason != llm.FinishStop {
		t.Errorf("FinishReason = %q", out.FinishReason)
	}
}

func TestTranslateResponseEmptyChoices(t *testing.T) {
	out := translateResponse(openai.ChatCompletionResponse{})
	if out.Content != "" || out.ToolCalls != nil {
		t.Errorf("expected zero-value response, got %+v", out)
	}
}

func TestTranslateResponseToolCalls(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					ID:       "call_1",
					Function: openai.FunctionCall{Name: "get_weather", Arguments: `{}`},
				}},
			},
			FinishReason: openai.FinishReasonToolCalls,
		}},
	}
	out := translateResponse(resp)
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "get_weather" {
		t.Errorf("ToolCalls = %+v", out.ToolCalls)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[openai.FinishReason]llm.FinishReason{
		openai.FinishReasonStop:          llm.FinishStop,
		openai.FinishReasonLength:        llm.FinishLength,
		openai.FinishReasonToolCalls:     llm.FinishToolUse,
		openai.FinishReasonContentFilter: llm.FinishContentFilter,
	}
	for reason, want := range cases {
		if got := mapFinishReason(reason); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", reason, got, want)
		}
	}
}
