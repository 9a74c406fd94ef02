package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ebaldwin/chorus-llm-go"
)

// buildMessageParams constructs Messages API parameters from normalized
// messages plus resolved generation and reasoning settings.
func buildMessageParams(systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (anthropic.MessageNewParams, error) {
	converted, err := convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := opts.ResolveMaxTokens(4096)

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  converted,
		MaxTokens: int64(maxTokens),
	}

	if systemPrompt != "" {
		apiParams.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		}
	}

	// Extended thinking. The raw budget is clamped against the turn's max
	// output tokens; the API rejects budgets at or above max_tokens.
	thinking := llmstream.ResolveBudgetReasoning(opts.Info, opts.Reasoning)
	if thinking != nil {
		budget := llmstream.ClampReasoningBudget(thinking.BudgetTokens, maxTokens, opts.Info)
		apiParams.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	} else if temp := opts.ResolveTemperature(); temp != nil {
		// Temperature is incompatible with extended thinking.
		apiParams.Temperature = anthropic.Float(*temp)
	}

	if len(opts.Tools) > 0 {
		tools, err := convertTools(opts.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		apiParams.Tools = tools

		choice, err := convertToolChoice(opts.ToolChoice)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		if choice != nil {
			apiParams.ToolChoice = *choice
		}
	}

	return apiParams, nil
}
