package google

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/codeforge/codeforge/internal/llm"
)

func TestTranslateMessagesSkipsSystem(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: "ignored here, handled by buildConfig"},
		{Role: llm.RoleUser, Text: "hello"},
	}
	out := translateMessages(messages)
	if len(out) != 1 {
		t.Fatalf("expected 1 content, got %d", len(out))
	}
	if out[0].Role != genai.RoleUser {
		t.Errorf("Role = %q", out[0].Role)
	}
	if out[0].Parts[0].Text != "hello" {
		t.Errorf("Text = %q", out[0].Parts[0].Text)
	}
}

func TestTranslateMessagesAssistantToolCall(t *testing.T) {
	messages := []llm.Message{{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{Name: "get_weather", Arguments: json.RawMessage(`{"city":"nyc"}`)},
		},
	}}
	out := translateMessages(messages)
	if len(out) != 1 || out[0].Role != genai.RoleModel {
		t.Fatalf("out = %+v", out)
	}
	if out[0].Parts[0].FunctionCall == nil || out[0].Parts[0].FunctionCall.Name != "get_weather" {
		t.Errorf("FunctionCall = %+v", out[0].Parts[0].FunctionCall)
	}
}

func TestTranslateMessagesToolResponse(t *testing.T) {
	messages := []llm.Message{{
		Role: llm.RoleTool, Name: "get_weather", ToolCallID: "call_1", Text: `{"temp":72}`,
	}}
	out := translateMessages(messages)
	if len(out) != 1 {
		t.Fatalf("out = %+v", out)
	}
	fr := out[0].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "get_weather" {
		t.Fatalf("FunctionResponse = %+v", fr)
	}
	if fr.Response["temp"] != float64(72) {
		t.Errorf("Response = %+v", fr.Response)
	}
}

func TestBuildConfigExtractsSystemInstruction(t *testing.T) {
	temp := 0.2
	req := llm.Request{
		MaxTokens:   100,
		Temperature: &temp,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Text: "be concise"},
			{Role: llm.RoleUser, Text: "hi"},
		},
	}
	cfg := buildConfig(req)
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be concise" {
		t.Errorf("SystemInstruction = %+v", cfg.SystemInstruction)
	}
	if cfg.MaxOutputTokens != 100 {
		t.Errorf("MaxOutputTokens = %d", cfg.MaxOutputTokens)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.2 {
		t.Errorf("Temperature = %v", cfg.Temperature)
	}
}

func TestTranslateTools(t *testing.T) {
	tools := []llm.ToolDefinition{{
		Name:        "get_weather",
		Description: "Gets weather",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
	}}
	out := translateTools(tools)
	if len(out) != 1 || len(out[0].FunctionDeclarations) != 1 {
		t.Fatalf("out = %+v", out)
	}
	decl := out[0].FunctionDeclarations[0]
	if decl.Name != "get_weather" {
		t.Errorf("Name = %q", decl.Name)
	}
	if decl.Parameters == nil || decl.Parameters.Type != genai.Type("object") {
		t.Errorf("Parameters = %+v", decl.Parameters)
	}
}

func TestToGenaiSchemaNested(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
		"required": []any{"city"},
	}
	out := toGenaiSchema(schema)
	if out.Type != genai.Type("object") {
		t.Errorf("Type = %q", out.Type)
	}
	if len(out.Properties) != 1 || out.Properties["city"].Type != genai.Type("string") {
		t.Errorf("Properties = %+v", out.Properties)
	}
	if len(out.Required) != 1 || out.Required[0] != "city" {
		t.Errorf("Required = %v", out.Required)
	}
}

func TestToGenaiSchemaNil(t *testing.T) {
	if out := toGenaiSchema(nil); out != nil {
		t.Errorf("expected nil, got %+v", out)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[string]llm.FinishReason{
		"STOP":       llm.FinishStop,
		"MAX_TOKENS": llm.FinishLength,
		"SAFETY":     llm.FinishContentFilter,
		"RECITATION": llm.FinishContentFilter,
		"OTHER":      llm.FinishStop,
	}
	for reason, want := range cases {
		if got := mapFinishReason(reason); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", reason, got, want)
		}
	}
}
