package llmstream

import (
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ToolChoiceMode controls tool selection behavior
type ToolChoiceMode string

const (
	ToolChoiceModeAuto     ToolChoiceMode = "auto"     // Model decides whether to use tools
	ToolChoiceModeRequired ToolChoiceMode = "required" // Model must use a tool
	ToolChoiceModeNone     ToolChoiceMode = "none"     // Model cannot use tools
	ToolChoiceModeSpecific ToolChoiceMode = "specific" // Model must use specific tool
)

// ToolChoice selects the tool-use policy for a turn.
type ToolChoice struct {
	Mode     ToolChoiceMode
	ToolName *string // required for ToolChoiceModeSpecific
}

// FunctionDetails represents the function definition within a tool (OpenAI format).
// This is the universal shape; providers rename fields only
// (Anthropic: parameters -> input_schema, Gemini: functionDeclarations).
type FunctionDetails struct {
	Name        string                 `json:"name"`                  // Function name (required)
	Description string                 `json:"description,omitempty"` // What the function does
	Parameters  map[string]interface{} `json:"parameters"`            // JSON Schema for parameters
}

// Tool represents a function tool. Adapters pass the definition through to
// their provider's native shape with field renames only - no semantic
// transformation - except strict-mode providers, which take the schema
// through StrictFunctionSchema first.
type Tool struct {
	Type     string          `json:"type"` // Always "function"
	Function FunctionDetails `json:"function"`
}

// Validate checks structural validity of a tool definition, including that
// the parameter schema compiles as JSON Schema.
func (t *Tool) Validate() error {
	if t.Type != "function" {
		return fmt.Errorf("tool type must be 'function', got '%s': %w", t.Type, ErrInvalidRequest)
	}
	if t.Function.Name == "" {
		return fmt.Errorf("tool function name is required: %w", ErrInvalidRequest)
	}
	if t.Function.Parameters != nil {
		if err := ValidateSchema(t.Function.Parameters); err != nil {
			return fmt.Errorf("tool '%s': %w", t.Function.Name, err)
		}
	}
	return nil
}

// ValidateSchema checks that the given parameter schema compiles as JSON
// Schema.
func ValidateSchema(schema map[string]interface{}) error {
	if schema == nil {
		return errors.New("llmstream: nil schema")
	}
	loader := gojsonschema.NewGoLoader(schema)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return fmt.Errorf("invalid parameter schema: %w", err)
	}
	return nil
}

// StrictFunctionSchema returns a deep copy of the parameter schema patched
// for strict function calling: every object schema lists all of its
// properties as required and sets additionalProperties to false, recursively
// through properties, array items, combinators, and definitions. The input
// is never mutated.
func StrictFunctionSchema(schema map[string]interface{}) map[string]interface{} {
	patched, _ := strictValue(schema).(map[string]interface{})
	return patched
}

// strictValue recursively copies-and-patches one schema value.
func strictValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return strictObject(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = strictValue(item)
		}
		return out
	default:
		return v
	}
}

func strictObject(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+2)

	for key, v := range schema {
		switch key {
		case "properties", "$defs", "definitions", "patternProperties":
			if sub, ok := v.(map[string]interface{}); ok {
				copied := make(map[string]interface{}, len(sub))
				for name, propSchema := range sub {
					copied[name] = strictValue(propSchema)
				}
				out[key] = copied
				continue
			}
			out[key] = strictValue(v)
		case "items", "anyOf", "oneOf", "allOf", "not", "if", "then", "else":
			out[key] = strictValue(v)
		default:
			out[key] = v
		}
	}

	if schema["type"] == "object" {
		out["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			required := make([]interface{}, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sortStrings(required)
			out["required"] = required
		}
	}

	return out
}

// sortStrings orders a []interface{} of strings in place. Deterministic
// required lists keep request bodies stable across runs.
func sortStrings(values []interface{}) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0; j-- {
			a, _ := values[j-1].(string)
			b, _ := values[j].(string)
			if a <= b {
				break
			}
			values[j-1], values[j] = values[j], values[j-1]
		}
	}
}

// NewFunctionTool builds a validated function tool.
func NewFunctionTool(name, description string, parameters map[string]interface{}) (*Tool, error) {
	tool := &Tool{
		Type: "function",
		Function: FunctionDetails{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
	if err := tool.Validate(); err != nil {
		return nil, err
	}
	return tool, nil
}
