package openrouter

import (
	"github.com/ebaldwin/chorus-llm-go"
)

// ChatTool is the OpenAI-compatible tool definition OpenRouter accepts.
type ChatTool struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// convertTools passes tool definitions through to the native shape.
func convertTools(tools []llmstream.Tool) []ChatTool {
	out := make([]ChatTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, ChatTool{
			Type: "function",
			Function: FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}
	return out
}

// convertToolChoice converts the library tool choice to wire format.
func convertToolChoice(choice *llmstream.ToolChoice) interface{} {
	if choice == nil {
		return nil
	}
	switch choice.Mode {
	case llmstream.ToolChoiceModeAuto:
		return "auto"
	case llmstream.ToolChoiceModeRequired:
		return "required"
	case llmstream.ToolChoiceModeNone:
		return "none"
	case llmstream.ToolChoiceModeSpecific:
		if choice.ToolName == nil {
			return "auto"
		}
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": *choice.ToolName},
		}
	default:
		return "auto"
	}
}
