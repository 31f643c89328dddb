package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/codeforge/codeforge/internal/llm"
)

func TestTranslateRequest(t *testing.T) {
	req := llm.Request{
		Model: "claude-sonnet-4-6",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Text: "You are a helpful assistant."},
			{Role: llm.RoleUser, Text: "Hello!"},
		},
	}

	params, err := translateRequest(req)
	if err != nil {
		t.Fatalf("translateRequest failed: %v", err)
	}
	if string(params.Model) != req.Model {
		t.Errorf("Model = %q", params.Model)
	}
	if params.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want default 4096", params.MaxTokens)
	}
	if len(params.System) != 1 || params.System[0].Text != "You are a helpful assistant." {
		t.Errorf("System = %+v", params.System)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
}

func TestTranslateRequestWithToolCallsAndResults(t *testing.T) {
	req := llm.Request{
		Model: "claude-sonnet-4-6",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: "What is 2+2?"},
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "calculator", Arguments: json.RawMessage(`{"expression":"2+2"}`)},
				},
			},
			{Role: llm.RoleTool, ToolCallID: "call_1", Text: "4"},
		},
	}

	params, err := translateRequest(req)
	if err != nil {
		t.Fatalf("translateRequest failed: %v", err)
	}
	if len(params.Messages) != 3 {
		t.Errorf("expected 3 messages, got %d", len(params.Messages))
	}
}

func TestTranslateTools(t *testing.T) {
	tools := []llm.ToolDefinition{{
		Name:        "add",
		Description: "Add two numbers",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"a": {"type": "integer"}, "b": {"type": "integer"}},
			"required": ["a", "b"]
		}`),
	}}

	result, err := translateTools(tools)
	if err != nil {
		t.Fatalf("translateTools failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}
	tool := result[0].OfTool
	if tool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if tool.Name != "add" {
		t.Errorf("Name = %q", tool.Name)
	}
	if len(tool.InputSchema.Required) != 2 {
		t.Errorf("Required = %v", tool.InputSchema.Required)
	}
}

func TestTranslateToolChoice(t *testing.T) {
	if tc := translateToolChoice(llm.ToolChoice{Mode: "none"}); tc.OfNone == nil {
		t.Error("expected OfNone for mode=none")
	}
	if tc := translateToolChoice(llm.ToolChoice{Mode: "required"}); tc.OfAny == nil {
		t.Error("expected OfAny for mode=required")
	}
	if tc := translateToolChoice(llm.ToolChoice{Mode: "named", Name: "add"}); tc.OfTool == nil || tc.OfTool.Name != "add" {
		t.Error("expected OfTool with name=add for mode=named")
	}
	if tc := translateToolChoice(llm.ToolChoice{Mode: "auto"}); tc.OfAuto == nil {
		t.Error("expected OfAuto for mode=auto")
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]llm.FinishReason{
		"end_turn":      llm.FinishStop,
		"stop_sequence": llm.FinishStop,
		"max_tokens":    llm.FinishLength,
		"tool_use":      llm.FinishToolUse,
		"unknown":       llm.FinishStop,
	}
	for reason, want := range cases {
		if got := mapStopReason(reason); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", reason, got, want)
		}
	}
}
