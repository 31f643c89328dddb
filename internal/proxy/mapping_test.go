package proxy

import (
	"encoding/json"
	"testing"

	"github.com/codeforge/codeforge/internal/llm"
)

func TestToCanonicalRequest_Basic(t *testing.T) {
	req := OpenAIChatRequest{
		Model: "claude-sonnet-4-6",
		Messages: []OpenAIChatMessage{
			{Role: "user", Content: "hello"},
		},
	}
	out := toCanonicalRequest(req)
	if out.Model != req.Model {
		t.Errorf("Model = %q", out.Model)
	}
	if len(out.Messages) != 1 || out.Messages[0].Text != "hello" {
		t.Errorf("Messages = %+v", out.Messages)
	}
	if out.Messages[0].Role != llm.RoleUser {
		t.Errorf("Role = %q", out.Messages[0].Role)
	}
}

func TestToCanonicalRequest_Tools(t *testing.T) {
	req := OpenAIChatRequest{
		Model: "gpt-5.2",
		Tools: []OpenAIChatTool{{
			Type: "function",
			Function: &OpenAIFunction{
				Name:       "get_weather",
				Parameters: json.RawMessage(`{"type":"object"}`),
			},
		}},
	}
	out := toCanonicalRequest(req)
	if len(out.Tools) != 1 || out.Tools[0].Name != "get_weather" {
		t.Errorf("Tools = %+v", out.Tools)
	}
}

func TestToCanonicalToolChoice(t *testing.T) {
	if got := toCanonicalToolChoice("none"); got == nil || got.Mode != "none" {
		t.Errorf("none = %+v", got)
	}
	if got := toCanonicalToolChoice(map[string]any{"function": map[string]any{"name": "foo"}}); got == nil || got.Name != "foo" {
		t.Errorf("named = %+v", got)
	}
	if got := toCanonicalToolChoice(nil); got != nil {
		t.Errorf("nil choice = %+v, want nil", got)
	}
}

func TestFromCanonicalResponse(t *testing.T) {
	resp := llm.Response{
		Content:      "hi there",
		FinishReason: llm.FinishStop,
		Usage:        llm.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
	}
	out := fromCanonicalResponse("claude-sonnet-4-6", resp)
	if len(out.Choices) != 1 || out.Choices[0].Message.Content != "hi there" {
		t.Errorf("Choices = %+v", out.Choices)
	}
	if out.Choices[0].FinishReason != "stop" {
		t.Errorf("FinishReason = %q", out.Choices[0].FinishReason)
	}
	if out.Usage.TotalTokens != 8 {
		t.Errorf("TotalTokens = %d", out.Usage.TotalTokens)
	}
}

func TestFromCanonicalResponse_ToolCalls(t *testing.T) {
	resp := llm.Response{
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{}`)}},
	}
	out := fromCanonicalResponse("gpt-5.2", resp)
	if len(out.Choices[0].Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %+v", out.Choices[0].Message.ToolCalls)
	}
	if out.Choices[0].Message.ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("Function.Name = %q", out.Choices[0].Message.ToolCalls[0].Function.Name)
	}
}

func TestFromCanonicalDelta(t *testing.T) {
	delta := llm.StreamDelta{TextDelta: "hel"}
	chunk := fromCanonicalDelta("chatcmpl_1", "claude-sonnet-4-6", delta)
	if len(chunk.Choices) != 1 || chunk.Choices[0].Delta.Content != "hel" {
		t.Errorf("Choices = %+v", chunk.Choices)
	}
	if chunk.Choices[0].FinishReason != nil {
		t.Error("expected no finish reason on a non-terminal delta")
	}
}

func TestFromCanonicalDelta_Finish(t *testing.T) {
	delta := llm.StreamDelta{FinishReason: llm.FinishToolUse}
	chunk := fromCanonicalDelta("chatcmpl_1", "gpt-5.2", delta)
	if chunk.Choices[0].FinishReason == nil || *chunk.Choices[0].FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %v", chunk.Choices[0].FinishReason)
	}
}
