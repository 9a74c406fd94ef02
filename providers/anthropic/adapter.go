package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ebaldwin/chorus-llm-go"
)

// convertMessages converts normalized messages to Anthropic SDK format.
//
// Tool results travel as tool_result blocks inside user messages; consecutive
// tool messages collapse into one user message so the turn structure stays
// strictly alternating.
func convertMessages(messages []llmstream.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i := 0; i < len(messages); i++ {
		msg := messages[i]

		switch msg.Role {
		case "user":
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for j, call := range msg.ToolCalls {
				if call.ID == "" || call.Name == "" {
					return nil, fmt.Errorf("message %d, tool call %d: missing id or name: %w", i, j, llmstream.ErrInvalidRequest)
				}
				input := call.Arguments
				if input == "" {
					input = "{}"
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, json.RawMessage(input), call.Name))
			}
			if len(blocks) == 0 {
				return nil, fmt.Errorf("message %d: assistant message has no content: %w", i, llmstream.ErrInvalidRequest)
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case "tool":
			var blocks []anthropic.ContentBlockParamUnion
			for ; i < len(messages) && messages[i].Role == "tool"; i++ {
				if messages[i].ToolCallID == "" {
					return nil, fmt.Errorf("message %d: tool message missing tool_call_id: %w", i, llmstream.ErrInvalidRequest)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Content, false))
			}
			i--
			result = append(result, anthropic.NewUserMessage(blocks...))

		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s': %w", i, msg.Role, llmstream.ErrInvalidRequest)
		}
	}

	return result, nil
}
