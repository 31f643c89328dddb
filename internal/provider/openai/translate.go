package openai

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"github.com/codeforge/codeforge/internal/llm"
)

func translateRequest(req llm.Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		out.Stop = req.StopSequences
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, translateMessage(msg))
	}

	if len(req.Tools) > 0 {
		out.Tools = translateTools(req.Tools)
	}
	if req.ToolChoice != nil {
		out.ToolChoice = translateToolChoice(*req.ToolChoice)
	}
	return out
}

func translateMessage(msg llm.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(msg.Role),
		Content:    msg.Text,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}
	if msg.Role == llm.RoleTool {
		out.Role = openai.ChatMessageRoleTool
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	return out
}

func translateTools(tools []llm.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := map[string]any{"type": "object", "properties": map[string]any{}}
		if len(t.Parameters) > 0 {
			var schemaMap map[string]any
			if err := json.Unmarshal(t.Parameters, &schemaMap); err == nil {
				params = schemaMap
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func translateToolChoice(choice llm.ToolChoice) any {
	switch choice.Mode {
	case "none":
		return "none"
	case "required":
		return "required"
	case "named":
		return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: choice.Name}}
	default:
		return "auto"
	}
}

func translateResponse(resp openai.ChatCompletionResponse) llm.Response {
	out := llm.Response{
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = mapFinishReason(choice.FinishReason)
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}
