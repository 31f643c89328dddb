package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/codeforge/codeforge/internal/llm"
)

// translateRequest converts a canonical llm.Request to Anthropic's
// MessageNewParams, the same shape godex's translateRequest builds from
// its own protocol.ResponsesRequest.
func translateRequest(req llm.Request) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	var systemParts []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, anthropic.TextBlockParam{Text: msg.Text})
		case llm.RoleUser:
			if msg.ToolCallID != "" {
				messages = append(messages, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text, false),
				))
				continue
			}
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
		case llm.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if len(tc.Arguments) > 0 {
					_ = json.Unmarshal(tc.Arguments, &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text, false),
			))
		}
	}
	if len(systemParts) > 0 {
		params.System = systemParts
	}
	params.Messages = messages

	if len(req.Tools) > 0 {
		tools, err := translateTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		params.ToolChoice = translateToolChoice(*req.ToolChoice)
	}

	return params, nil
}

func translateTools(tools []llm.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			var schemaMap map[string]any
			if err := json.Unmarshal(t.Parameters, &schemaMap); err != nil {
				return nil, fmt.Errorf("parse tool schema for %s: %w", t.Name, err)
			}
			if props, ok := schemaMap["properties"].(map[string]any); ok {
				schema.Properties = props
			}
			if req, ok := schemaMap["required"].([]any); ok {
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result, nil
}

func translateToolChoice(choice llm.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case "none":
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case "required":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "named":
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// translateStreamEvent converts one Anthropic stream event into zero or
// more canonical deltas, tracking the in-flight tool-use block's id/name
// across ContentBlockStart/Delta events the same way godex's
// translateStreamEvent tracks currentItemID/currentToolID.
func translateStreamEvent(event anthropic.MessageStreamEventUnion, currentToolID, currentToolName *string) []llm.StreamDelta {
	var deltas []llm.StreamDelta

	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		block := e.ContentBlock
		if block.Type == "tool_use" {
			toolBlock := block.AsToolUse()
			*currentToolID = toolBlock.ID
			*currentToolName = toolBlock.Name
			deltas = append(deltas, llm.StreamDelta{
				ToolCallDelta: &llm.ToolCall{ID: toolBlock.ID, Name: toolBlock.Name},
			})
		}

	case anthropic.ContentBlockDeltaEvent:
		switch delta := e.Delta; delta.Type {
		case "text_delta":
			deltas = append(deltas, llm.StreamDelta{TextDelta: delta.AsTextDelta().Text})
		case "input_json_delta":
			deltas = append(deltas, llm.StreamDelta{
				ToolCallDelta: &llm.ToolCall{
					ID:        *currentToolID,
					Name:      *currentToolName,
					Arguments: json.RawMessage(delta.AsInputJSONDelta().PartialJSON),
				},
			})
		}

	case anthropic.MessageDeltaEvent:
		if e.Usage.OutputTokens > 0 {
			deltas = append(deltas, llm.StreamDelta{
				Usage: &llm.Usage{CompletionTokens: int(e.Usage.OutputTokens)},
			})
		}
		if stop := string(e.Delta.StopReason); stop != "" {
			deltas = append(deltas, llm.StreamDelta{FinishReason: mapStopReason(stop)})
		}

	case anthropic.MessageStopEvent:
		// Terminal framing only; FinishReason already emitted from the
		// preceding MessageDeltaEvent, matching the Messages API's order.
	}

	return deltas
}

func mapStopReason(reason string) llm.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishStop
	case "max_tokens":
		return llm.FinishLength
	case "tool_use":
		return llm.FinishToolUse
	default:
		return llm.FinishStop
	}
}
