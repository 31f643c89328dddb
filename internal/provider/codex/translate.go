package codex

import (
	"encoding/json"

	"github.com/codeforge/codeforge/internal/llm"
)

// Wire types mirror the subset of godex's pkg/protocol.ResponsesRequest/
// StreamEvent this adapter exercises; kept private since nothing outside
// this package needs the Codex backend-api wire shape.

type wireRequest struct {
	Model        string             `json:"model"`
	Instructions string             `json:"instructions,omitempty"`
	Input        []wireInputItem    `json:"input,omitempty"`
	Tools        []wireTool         `json:"tools,omitempty"`
	ToolChoice   string             `json:"tool_choice,omitempty"`
	Store        bool               `json:"store"`
	Stream       bool               `json:"stream"`
}

type wireInputItem struct {
	Type      string              `json:"type"`
	Role      string              `json:"role,omitempty"`
	Content   []wireContentPart   `json:"content,omitempty"`
	Name      string              `json:"name,omitempty"`
	Arguments string              `json:"arguments,omitempty"`
	CallID    string              `json:"call_id,omitempty"`
	Output    string              `json:"output,omitempty"`
}

type wireContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireOutputItem struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Name   string `json:"name,omitempty"`
	CallID string `json:"call_id,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type wireResponseRef struct {
	Usage *wireUsage `json:"usage,omitempty"`
}

type wireStreamEvent struct {
	Type     string           `json:"type"`
	Response *wireResponseRef `json:"response,omitempty"`
	Item     *wireOutputItem  `json:"item,omitempty"`
	Delta    string           `json:"delta,omitempty"`
	ItemID   string           `json:"item_id,omitempty"`
}

func translateRequest(req llm.Request) wireRequest {
	out := wireRequest{Model: req.Model, Store: false, Stream: true}

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			if out.Instructions == "" {
				out.Instructions = msg.Text
			} else {
				out.Instructions += "\n\n" + msg.Text
			}
		case llm.RoleUser:
			out.Input = append(out.Input, wireInputItem{
				Type: "message", Role: "user",
				Content: []wireContentPart{{Type: "input_text", Text: msg.Text}},
			})
		case llm.RoleAssistant:
			if msg.Text != "" {
				out.Input = append(out.Input, wireInputItem{
					Type: "message", Role: "assistant",
					Content: []wireContentPart{{Type: "text", Text: msg.Text}},
				})
			}
			for _, tc := range msg.ToolCalls {
				out.Input = append(out.Input, wireInputItem{
					Type: "function_call", Name: tc.Name, CallID: tc.ID,
					Arguments: string(tc.Arguments),
				})
			}
		case llm.RoleTool:
			out.Input = append(out.Input, wireInputItem{
				Type: "function_call_output", CallID: msg.ToolCallID, Output: msg.Text,
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case "none", "auto", "required":
			out.ToolChoice = req.ToolChoice.Mode
		case "named":
			out.ToolChoice = req.ToolChoice.Name
		}
	}
	return out
}

// toolCallTracker maps the stream's item_id (assigned when a function-call
// output item is added) to the call_id codeforge's canonical ToolCall.ID
// uses, mirroring godex's sse.Collector.itemToCallID bookkeeping.
type toolCallTracker struct {
	itemToCallID map[string]string
	nameByCallID map[string]string
}

func newToolCallTracker() *toolCallTracker {
	return &toolCallTracker{itemToCallID: map[string]string{}, nameByCallID: map[string]string{}}
}

func translateStreamEvent(ev wireStreamEvent, tracker *toolCallTracker) []llm.StreamDelta {
	var deltas []llm.StreamDelta

	switch ev.Type {
	case "response.output_text.delta":
		deltas = append(deltas, llm.StreamDelta{TextDelta: ev.Delta})

	case "response.output_item.added":
		if ev.Item != nil && ev.Item.Type == "function_call" {
			tracker.itemToCallID[ev.Item.ID] = ev.Item.CallID
			tracker.nameByCallID[ev.Item.CallID] = ev.Item.Name
			deltas = append(deltas, llm.StreamDelta{
				ToolCallDelta: &llm.ToolCall{ID: ev.Item.CallID, Name: ev.Item.Name},
			})
		}

	case "response.function_call_arguments.delta":
		callID := tracker.itemToCallID[ev.ItemID]
		if ev.Item != nil && ev.Item.CallID != "" {
			callID = ev.Item.CallID
		}
		if callID != "" {
			deltas = append(deltas, llm.StreamDelta{
				ToolCallDelta: &llm.ToolCall{
					ID: callID, Name: tracker.nameByCallID[callID], Arguments: json.RawMessage(ev.Delta),
				},
			})
		}

	case "response.done":
		delta := llm.StreamDelta{FinishReason: llm.FinishStop}
		if ev.Response != nil && ev.Response.Usage != nil {
			u := ev.Response.Usage
			delta.Usage = &llm.Usage{
				PromptTokens:     u.InputTokens,
				CompletionTokens: u.OutputTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
		deltas = append(deltas, delta)
	}

	return deltas
}
