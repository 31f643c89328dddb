package google

import (
	"encoding/json"

	"google.golang.org/genai"

	"github.com/codeforge/codeforge/internal/llm"
)

func translateMessages(messages []llm.Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		content := &genai.Content{}
		switch msg.Role {
		case llm.RoleUser, llm.RoleTool:
			content.Role = genai.RoleUser
		case llm.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		isToolResult := msg.Role == llm.RoleTool && msg.ToolCallID != ""
		if msg.Text != "" && !isToolResult {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Text})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				args = make(map[string]any)
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		if msg.Role == llm.RoleTool && msg.ToolCallID != "" {
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Text), &response); err != nil {
				response = map[string]any{"result": msg.Text}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: msg.Name, Response: response},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result
}

func buildConfig(req llm.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	for _, msg := range req.Messages {
		if msg.Role == llm.RoleSystem {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Text}}}
			break
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if len(req.Tools) > 0 {
		config.Tools = translateTools(req.Tools)
	}
	return config
}

func translateTools(tools []llm.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &schemaMap)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(schemaMap),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGenaiSchema converts a JSON-schema map to genai's typed Schema,
// following kadirpekel-hector's pkg/model/gemini/gemini.go toGenaiSchema.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	return s
}
