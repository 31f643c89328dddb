package codex

import (
	"encoding/json"
	"testing"

	"github.com/codeforge/codeforge/internal/llm"
)

func TestTranslateRequestMergesSystemIntoInstructions(t *testing.T) {
	req := llm.Request{
		Model: "gpt-5.2-codex",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Text: "Be concise."},
			{Role: llm.RoleSystem, Text: "Use Go idioms."},
			{Role: llm.RoleUser, Text: "hello"},
		},
	}
	out := translateRequest(req)
	if out.Instructions != "Be concise.\n\nUse Go idioms." {
		t.Errorf("Instructions = %q", out.Instructions)
	}
	if len(out.Input) != 1 || out.Input[0].Role != "user" {
		t.Errorf("Input = %+v", out.Input)
	}
}

func TestTranslateRequestToolCallRoundTrip(t *testing.T) {
	req := llm.Request{
		Model: "gpt-5.2-codex",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: "what's 2+2?"},
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "calculator", Arguments: json.RawMessage(`{"expr":"2+2"}`)},
				},
			},
			{Role: llm.RoleTool, ToolCallID: "call_1", Text: "4"},
		},
	}
	out := translateRequest(req)
	if len(out.Input) != 3 {
		t.Fatalf("expected 3 input items, got %d", len(out.Input))
	}
	if out.Input[1].Type != "function_call" || out.Input[1].CallID != "call_1" {
		t.Errorf("function_call item = %+v", out.Input[1])
	}
	if out.Input[2].Type != "function_call_output" || out.Input[2].Output != "4" {
		t.Errorf("function_call_output item = %+v", out.Input[2])
	}
}

func TestTranslateRequestToolChoice(t *testing.T) {
	req := llm.Request{Model: "m", ToolChoice: &llm.ToolChoice{Mode: "named", Name: "calculator"}}
	out := translateRequest(req)
	if out.ToolChoice != "calculator" {
		t.Errorf("ToolChoice = %q", out.ToolChoice)
	}

	req2 := llm.Request{Model: "m", ToolChoice: &llm.ToolChoice{Mode: "required"}}
	out2 := translateRequest(req2)
	if out2.ToolChoice != "required" {
		t.Errorf("ToolChoice = %q", out2.ToolChoice)
	}
}

func TestTranslateStreamEventTextDelta(t *testing.T) {
	tracker := newToolCallTracker()
	deltas := translateStreamEvent(wireStreamEvent{Type: "response.output_text.delta", Delta: "hel"}, tracker)
	if len(deltas) != 1 || deltas[0].TextDelta != "hel" {
		t.Errorf("deltas = %+v", deltas)
	}
}

func TestTranslateStreamEventToolCallLifecycle(t *testing.T) {
	tracker := newToolCallTracker()

	added := translateStreamEvent(wireStreamEvent{
		Type: "response.output_item.added",
		Item: &wireOutputItem{ID: "item_1", Type: "function_call", Name: "get_weather", CallID: "call_1"},
	}, tracker)
	if len(added) != 1 || added[0].ToolCallDelta == nil || added[0].ToolCallDelta.ID != "call_1" {
		t.Fatalf("added deltas = %+v", added)
	}

	argDelta := translateStreamEvent(wireStreamEvent{
		Type: "response.function_call_arguments.delta", ItemID: "item_1", Delta: `{"city":`,
	}, tracker)
	if len(argDelta) != 1 || argDelta[0].ToolCallDelta == nil {
		t.Fatalf("arg deltas = %+v", argDelta)
	}
	if argDelta[0].ToolCallDelta.ID != "call_1" || argDelta[0].ToolCallDelta.Name != "get_weather" {
		t.Errorf("tracked call = %+v", argDelta[0].ToolCallDelta)
	}
}

func TestTranslateStreamEventDone(t *testing.T) {
	tracker := newToolCallTracker()
	deltas := translateStreamEvent(wireStreamEvent{
		Type:     "response.done",
		Response: &wireResponseRef{Usage: &wireUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
	}, tracker)
	if len(deltas) != 1 || deltas[0].FinishReason != llm.FinishStop {
		t.Fatalf("deltas = %+v", deltas)
	}
	if deltas[0].Usage == nil || deltas[0].Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", deltas[0].Usage)
	}
}

func TestTranslateStreamEventUnknownType(t *testing.T) {
	tracker := newToolCallTracker()
	deltas := translateStreamEvent(wireStreamEvent{Type: "response.created"}, tracker)
	if len(deltas) != 0 {
		t.Errorf("expected no deltas for an unhandled event type, got %+v", deltas)
	}
}
