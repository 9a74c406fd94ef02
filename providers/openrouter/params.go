package openrouter

import (
	"fmt"

	"github.com/ebaldwin/chorus-llm-go"
)

// ChatCompletionRequest is the OpenRouter request body. The shape is
// OpenAI-compatible plus the OpenRouter reasoning and usage extensions.
type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []ChatMessage   `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Reasoning   *ReasoningParam `json:"reasoning,omitempty"`
	Stream      bool            `json:"stream"`
	Usage       *UsageParam     `json:"usage,omitempty"`
	Tools       []ChatTool      `json:"tools,omitempty"`
	ToolChoice  interface{}     `json:"tool_choice,omitempty"`
}

// ReasoningParam is OpenRouter's unified reasoning knob. Exactly one of
// Effort or MaxTokens is set; OpenRouter translates to whatever the
// underlying provider speaks.
type ReasoningParam struct {
	Effort    string `json:"effort,omitempty"`
	MaxTokens *int   `json:"max_tokens,omitempty"`
}

// UsageParam opts the stream into the accounting payload, including
// OpenRouter's own computed cost.
type UsageParam struct {
	Include bool `json:"include"`
}

type ChatMessage struct {
	Role       string         `json:"role"` // "system", "user", "assistant", "tool"
	Content    string         `json:"content"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type ChatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// buildChatCompletionRequest constructs the request body from normalized
// messages plus resolved reasoning and generation parameters.
func buildChatCompletionRequest(systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (*ChatCompletionRequest, error) {
	chatMessages := make([]ChatMessage, 0, len(messages)+1)

	if systemPrompt != "" {
		chatMessages = append(chatMessages, ChatMessage{Role: "system", Content: systemPrompt})
	}

	for i, msg := range messages {
		switch msg.Role {
		case "user", "assistant":
			m := ChatMessage{Role: msg.Role, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, ChatToolCall{
					ID:   call.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			chatMessages = append(chatMessages, m)
		case "tool":
			if msg.ToolCallID == "" {
				return nil, fmt.Errorf("message %d: tool message missing tool_call_id: %w", i, llmstream.ErrInvalidRequest)
			}
			chatMessages = append(chatMessages, ChatMessage{
				Role:       "tool",
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s': %w", i, msg.Role, llmstream.ErrInvalidRequest)
		}
	}

	req := &ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    chatMessages,
		Stream:      true,
		Usage:       &UsageParam{Include: true},
		Temperature: opts.ResolveTemperature(),
	}

	maxTokens := opts.ResolveMaxTokens(0)
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	// Budget wins over effort when the model supports both; OpenRouter
	// speaks both shapes at the wire level.
	if budget := llmstream.ResolveBudgetReasoning(opts.Info, opts.Reasoning); budget != nil {
		clamped := llmstream.ClampReasoningBudget(budget.BudgetTokens, opts.ResolveMaxTokens(4096), opts.Info)
		req.Reasoning = &ReasoningParam{MaxTokens: &clamped}
	} else if effort := llmstream.ResolveEffortReasoning(opts.Info, opts.Reasoning); effort != nil {
		req.Reasoning = &ReasoningParam{Effort: effort.Effort}
	}

	if len(opts.Tools) > 0 {
		req.Tools = convertTools(opts.Tools)
		req.ToolChoice = convertToolChoice(opts.ToolChoice)
	}

	return req, nil
}
