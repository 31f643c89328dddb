// Package orchestrator implements the Agent Orchestrator of spec.md §4.6:
// the conversation loop that drives one user turn through the Provider
// Registry and Tool Set until the model stops asking for tools. Grounded
// on sebastianxbutler-godex's pkg/harness/toolloop.go's RunToolLoop: the
// same stream → collect-tool-calls → dispatch → follow-up → repeat shape,
// generalized from a single-harness callback to the canonical
// internal/llm.Provider and internal/tool.Registry contracts, with
// per-path write serialization already handled inside tool.Registry.Execute
// and concurrent (rather than sequential) tool dispatch within one turn
// per spec.md §4.6 step 5 and §5's ordering guarantees.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/llm"
	"github.com/codeforge/codeforge/internal/tool"
)

// EventKind discriminates a turn Event, mirroring the teacher's
// harness.Event kinds (EventText/EventToolCall/EventUsage) generalized
// with an explicit tool-result kind the teacher folds into ToolHandler
// instead of surfacing as its own event.
type EventKind string

const (
	EventTextDelta  EventKind = "text_delta"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventUsage      EventKind = "usage"
	EventFinish     EventKind = "finish"
)

// Event is one UI-bound notification emitted as the loop progresses.
type Event struct {
	Kind         EventKind
	TextDelta    string
	ToolCall     *llm.ToolCall
	ToolResult   *tool.Result
	ToolCallID   string
	ToolErr      error
	Usage        *llm.Usage
	FinishReason llm.FinishReason
}

// Options configures one conversation-loop turn.
type Options struct {
	// MaxTurns bounds the number of model→tool→model cycles; spec.md
	// §4.6 defaults this to 25 when unset.
	MaxTurns int
	// MaxElapsed bounds the turn's total wall-clock time; zero means no
	// limit beyond ctx's own deadline.
	MaxElapsed time.Duration
	// OnEvent is called for every Event in arrival order. Returning an
	// error aborts the turn.
	OnEvent func(Event) error
	// ExecutionContext is threaded into every tool.Registry.Execute call.
	ExecutionContext tool.ExecutionContext
}

// Provider is the subset of llm.Provider the loop depends on, widened
// only for testability with stub providers.
type Provider interface {
	Stream(ctx context.Context, req llm.Request, onDelta func(llm.StreamDelta) error) error
}

// Loop drives one user turn to completion: append the user message,
// repeatedly call model → dispatch tool calls → append results, until the
// model stops requesting tools, per spec.md §4.6 steps 1-7.
func Loop(ctx context.Context, session *Session, provider Provider, model string, tools *tool.Registry, userPrompt string, opts Options) (string, error) {
	start := time.Now()
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 25
	}
	emit := opts.OnEvent
	if emit == nil {
		emit = func(Event) error { return nil }
	}

	session.Append(llm.NewTextMessage(llm.RoleUser, userPrompt))

	toolDefs := toolDefinitions(tools)

	var finalText string
	for i := 0; i < maxTurns; i++ {
		if opts.MaxElapsed > 0 && time.Since(start) > opts.MaxElapsed {
			return limitExceeded(session, emit)
		}

		req := llm.Request{Model: model, Messages: session.Messages(), Tools: toolDefs}

		assistant := llm.Message{Role: llm.RoleAssistant}
		toolArgBufs := map[string]*[]byte{}
		var usage *llm.Usage
		var finish llm.FinishReason

		err := provider.Stream(ctx, req, func(d llm.StreamDelta) error {
			if d.TextDelta != "" {
				assistant.Text += d.TextDelta
				if err := emit(Event{Kind: EventTextDelta, TextDelta: d.TextDelta}); err != nil {
					return err
				}
			}
			if d.ToolCallDelta != nil {
				id := d.ToolCallDelta.ID
				buf, ok := toolArgBufs[id]
				if !ok {
					assistant.ToolCalls = append(assistant.ToolCalls, llm.ToolCall{ID: id, Name: d.ToolCallDelta.Name})
					b := []byte{}
					toolArgBufs[id] = &b
					buf = &b
				}
				*buf = append(*buf, d.ToolCallDelta.Arguments...)
			}
			if d.Usage != nil {
				usage = d.Usage
			}
			if d.FinishReason != "" {
				finish = d.FinishReason
			}
			return nil
		})
		if err != nil {
			return finalText, err
		}

		for i := range assistant.ToolCalls {
			id := assistant.ToolCalls[i].ID
			if buf, ok := toolArgBufs[id]; ok {
				assistant.ToolCalls[i].Arguments = json.RawMessage(*buf)
			}
		}
		finalText = assistant.Text
		session.Append(assistant)

		if usage != nil {
			if err := emit(Event{Kind: EventUsage, Usage: usage}); err != nil {
				return finalText, err
			}
		}
		for _, tc := range assistant.ToolCalls {
			tcCopy := tc
			if err := emit(Event{Kind: EventToolCall, ToolCall: &tcCopy}); err != nil {
				return finalText, err
			}
		}

		if len(assistant.ToolCalls) == 0 {
			if err := emit(Event{Kind: EventFinish, FinishReason: finish}); err != nil {
				return finalText, err
			}
			return finalText, nil
		}

		results := dispatchToolCalls(ctx, tools, assistant.ToolCalls, opts.ExecutionContext)
		for _, r := range results {
			if err := emit(Event{Kind: EventToolResult, ToolCallID: r.callID, ToolResult: r.result, ToolErr: r.err}); err != nil {
				return finalText, err
			}
			output := r.result.Output
			if r.err != nil {
				output = r.err.Error()
			}
			session.Append(llm.Message{Role: llm.RoleTool, Text: output, ToolCallID: r.callID})
		}
	}

	return limitExceeded(session, emit)
}

// limitExceeded implements spec.md §4.6's termination clause: inject a
// synthetic tool message and surface a user-visible error.
func limitExceeded(session *Session, emit func(Event) error) (string, error) {
	session.Append(llm.Message{Role: llm.RoleTool, Text: "limit exceeded"})
	err := errs.New(errs.KindTimeout, "conversation loop exceeded max turns or elapsed time")
	_ = emit(Event{Kind: EventFinish, FinishReason: llm.FinishError})
	return "", err
}

func toolDefinitions(tools *tool.Registry) []llm.ToolDefinition {
	if tools == nil {
		return nil
	}
	all := tools.All()
	defs := make([]llm.ToolDefinition, len(all))
	for i, t := range all {
		defs[i] = llm.ToolDefinition{Name: t.ID(), Description: t.Description(), Parameters: t.ParametersSchema()}
	}
	return defs
}

type toolCallResult struct {
	callID string
	result *tool.Result
	err    error
}

// dispatchToolCalls executes every call concurrently, per spec.md §4.6
// step 5; tool.Registry.Execute itself serializes file-writing calls that
// name the same file_path, in arrival order.
func dispatchToolCalls(ctx context.Context, tools *tool.Registry, calls []llm.ToolCall, ectx tool.ExecutionContext) []toolCallResult {
	results := make([]toolCallResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			var args map[string]any
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &args); err != nil {
					results[i] = toolCallResult{callID: call.ID, result: &tool.Result{}, err: errs.Wrap(errs.KindInvalidParameters, "decode tool arguments", err)}
					return
				}
			}
			res, err := tools.Execute(ctx, call.Name, args, ectx)
			results[i] = toolCallResult{callID: call.ID, result: &res, err: err}
		}(i, call)
	}
	wg.Wait()
	return results
}
