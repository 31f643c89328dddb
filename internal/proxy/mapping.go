package proxy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeforge/codeforge/internal/llm"
)

// toCanonicalRequest translates an incoming OpenAI-chat request into the
// canonical llm.Request every Provider adapter understands, the inverse of
// each adapter's own translateRequest step.
func toCanonicalRequest(req OpenAIChatRequest) llm.Request {
	out := llm.Request{Model: req.Model}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, toCanonicalMessage(msg))
	}
	for _, tool := range req.Tools {
		if tool.Function == nil {
			continue
		}
		out.Tools = append(out.Tools, llm.ToolDefinition{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
		})
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	out.ToolChoice = toCanonicalToolChoice(req.ToolChoice)
	return out
}

func toCanonicalMessage(msg OpenAIChatMessage) llm.Message {
	role := llm.Role(msg.Role)
	text := contentToText(msg.Content)
	out := llm.NewTextMessage(role, text)
	out.Name = msg.Name
	out.ToolCallID = msg.ToolCallID
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}
	return out
}

func contentToText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		text := ""
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["text"].(string); t != "" {
				text += t
			}
		}
		return text
	default:
		return ""
	}
}

func toCanonicalToolChoice(choice any) *llm.ToolChoice {
	switch v := choice.(type) {
	case string:
		switch v {
		case "none":
			return &llm.ToolChoice{Mode: "none"}
		case "required":
			return &llm.ToolChoice{Mode: "required"}
		case "auto":
			return &llm.ToolChoice{Mode: "auto"}
		}
	case map[string]any:
		if fn, ok := v["function"].(map[string]any); ok {
			if name, _ := fn["name"].(string); name != "" {
				return &llm.ToolChoice{Mode: "named", Name: name}
			}
		}
	}
	return nil
}

// fromCanonicalResponse translates a canonical llm.Response into a
// non-streaming OpenAI chat completion body.
func fromCanonicalResponse(model string, resp llm.Response) OpenAIChatResponse {
	msg := OpenAIChatMessage{Role: string(llm.RoleAssistant), Content: resp.Content}
	for _, call := range resp.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, OpenAIChatToolCall{
			ID:   call.ID,
			Type: "function",
			Function: OpenAIChatToolFunction{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return OpenAIChatResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []OpenAIChatChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: fromFinishReason(resp.FinishReason),
		}},
		Usage: &OpenAIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// fromCanonicalDelta translates one llm.StreamDelta into an OpenAI
// streaming chunk.
func fromCanonicalDelta(id, model string, delta llm.StreamDelta) OpenAIChatStreamChunk {
	out := OpenAIChatDelta{Content: delta.TextDelta}
	if delta.ToolCallDelta != nil {
		out.ToolCalls = []OpenAIChatToolCallDelta{{
			Index: 0,
			ID:    delta.ToolCallDelta.ID,
			Type:  "function",
			Function: &OpenAIChatToolFuncDelta{
				Name:      delta.ToolCallDelta.Name,
				Arguments: string(delta.ToolCallDelta.Arguments),
			},
		}}
	}
	chunk := OpenAIChatStreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []OpenAIChatDeltaChoice{{Index: 0, Delta: out}},
	}
	if delta.FinishReason != "" {
		reason := fromFinishReason(delta.FinishReason)
		chunk.Choices[0].FinishReason = &reason
	}
	return chunk
}

func fromFinishReason(reason llm.FinishReason) string {
	switch reason {
	case llm.FinishStop:
		return "stop"
	case llm.FinishLength:
		return "length"
	case llm.FinishToolUse:
		return "tool_calls"
	case llm.FinishContentFilter:
		return "content_filter"
	case llm.FinishError:
		return "stop"
	default:
		return ""
	}
}

func newCompletionID() string {
	return fmt.Sprintf("chatcmpl_%d", time.Now().UnixNano())
}
