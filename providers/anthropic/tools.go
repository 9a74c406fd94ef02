package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ebaldwin/chorus-llm-go"
)

// convertTools converts function tools to the Anthropic input_schema shape.
// The universal format nests the JSON schema under function.parameters;
// Anthropic wants properties and required hoisted to the schema top level.
func convertTools(tools []llmstream.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools))

	for i, tool := range tools {
		if tool.Function.Name == "" {
			return nil, fmt.Errorf("tool %d: missing function name: %w", i, llmstream.ErrInvalidRequest)
		}

		properties := tool.Function.Parameters["properties"]

		// Type can be elided (zero value) - it will marshal as "object"
		schema := anthropic.ToolInputSchemaParam{
			Properties:  properties,
			ExtraFields: make(map[string]any),
		}

		if required, ok := tool.Function.Parameters["required"].([]interface{}); ok {
			schema.Required = make([]string, len(required))
			for j, v := range required {
				if str, ok := v.(string); ok {
					schema.Required[j] = str
				}
			}
		}

		// Carry remaining schema fields (additionalProperties, $defs, etc.)
		for key, value := range tool.Function.Parameters {
			if key != "type" && key != "properties" && key != "required" {
				schema.ExtraFields[key] = value
			}
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
		if tool.Function.Description != "" {
			if toolParam.OfTool == nil {
				toolParam.OfTool = &anthropic.ToolParam{}
			}
			toolParam.OfTool.Description = anthropic.String(tool.Function.Description)
		}

		result = append(result, toolParam)
	}

	return result, nil
}

// convertToolChoice converts the library tool choice to Anthropic format.
// Returns nil if no tool choice specified (lets provider decide).
func convertToolChoice(choice *llmstream.ToolChoice) (*anthropic.ToolChoiceUnionParam, error) {
	if choice == nil {
		return nil, nil
	}

	switch choice.Mode {
	case llmstream.ToolChoiceModeAuto:
		return &anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}, nil

	case llmstream.ToolChoiceModeRequired:
		// Anthropic calls this "any"
		return &anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		}, nil

	case llmstream.ToolChoiceModeNone:
		noneParam := anthropic.NewToolChoiceNoneParam()
		return &anthropic.ToolChoiceUnionParam{
			OfNone: &noneParam,
		}, nil

	case llmstream.ToolChoiceModeSpecific:
		if choice.ToolName == nil || *choice.ToolName == "" {
			return nil, fmt.Errorf("tool_name required for specific mode: %w", llmstream.ErrInvalidRequest)
		}
		unionParam := anthropic.ToolChoiceParamOfTool(*choice.ToolName)
		return &unionParam, nil

	default:
		return nil, fmt.Errorf("unsupported tool choice mode '%s': %w", choice.Mode, llmstream.ErrInvalidRequest)
	}
}
