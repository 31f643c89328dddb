package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/codeforge/codeforge/internal/llm"
	"github.com/codeforge/codeforge/internal/tool"
)

// scriptedProvider replays one slice of StreamDelta per Stream call,
// mirroring the teacher's harness.Mock scripted-response pattern.
type scriptedProvider struct {
	turns [][]llm.StreamDelta
	calls int
}

func (p *scriptedProvider) Stream(_ context.Context, _ llm.Request, onDelta func(llm.StreamDelta) error) error {
	if p.calls >= len(p.turns) {
		return errors.New("scriptedProvider: no more turns scripted")
	}
	deltas := p.turns[p.calls]
	p.calls++
	for _, d := range deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

type echoTool struct{ output string }

func (e *echoTool) ID() string                          { return "echo" }
func (e *echoTool) Description() string                 { return "echoes a fixed string" }
func (e *echoTool) ParametersSchema() json.RawMessage    { return json.RawMessage(`{"type":"object"}`) }
func (e *echoTool) Execute(_ context.Context, _ map[string]any, _ tool.ExecutionContext) (tool.Result, error) {
	return tool.Result{Output: e.output}, nil
}

func TestLoop_NoToolCalls(t *testing.T) {
	session := NewSession("s1")
	provider := &scriptedProvider{turns: [][]llm.StreamDelta{
		{{TextDelta: "hello"}, {FinishReason: llm.FinishStop}},
	}}
	registry := tool.NewRegistry(nil, nil)

	text, err := Loop(context.Background(), session, provider, "model-x", registry, "hi", Options{})
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if text != "hello" {
		t.Fatalf("got %q, want %q", text, "hello")
	}
	if len(session.Messages()) != 2 {
		t.Fatalf("expected 2 messages (user+assistant), got %d", len(session.Messages()))
	}
}

func TestLoop_WithToolCall(t *testing.T) {
	session := NewSession("s1")
	provider := &scriptedProvider{turns: [][]llm.StreamDelta{
		{
			{ToolCallDelta: &llm.ToolCall{ID: "c1", Name: "echo"}},
			{ToolCallDelta: &llm.ToolCall{ID: "c1", Arguments: json.RawMessage(`{}`)}},
			{FinishReason: llm.FinishToolUse},
		},
		{{TextDelta: "done"}, {FinishReason: llm.FinishStop}},
	}}
	registry := tool.NewRegistry(nil, nil)
	registry.Register(&echoTool{output: "echoed"})

	var events []Event
	text, err := Loop(context.Background(), session, provider, "model-x", registry, "run echo", Options{
		OnEvent: func(e Event) error { events = append(events, e); return nil },
	})
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if text != "done" {
		t.Fatalf("got %q, want %q", text, "done")
	}

	var sawResult bool
	for _, e := range events {
		if e.Kind == EventToolResult && e.ToolResult.Output == "echoed" {
			sawResult = true
		}
	}
	if !sawResult {
		t.Fatal("expected a tool_result event with the echoed output")
	}
}

func TestLoop_MaxTurnsExceeded(t *testing.T) {
	session := NewSession("s1")
	provider := &scriptedProvider{turns: [][]llm.StreamDelta{
		{{ToolCallDelta: &llm.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)}}, {FinishReason: llm.FinishToolUse}},
		{{ToolCallDelta: &llm.ToolCall{ID: "c2", Name: "echo", Arguments: json.RawMessage(`{}`)}}, {FinishReason: llm.FinishToolUse}},
	}}
	registry := tool.NewRegistry(nil, nil)
	registry.Register(&echoTool{output: "echoed"})

	_, err := Loop(context.Background(), session, provider, "model-x", registry, "loop forever", Options{MaxTurns: 2})
	if err == nil {
		t.Fatal("expected an error when max turns is exceeded")
	}

	msgs := session.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleTool || last.Text != "limit exceeded" {
		t.Fatalf("expected synthetic limit-exceeded tool message, got %+v", last)
	}
}
