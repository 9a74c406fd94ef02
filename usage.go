package llmstream

import "github.com/tidwall/gjson"

// UsageFamily selects the alias-precedence list used to read a provider's
// raw usage payload. Field names vary wildly across providers
// (prompt_tokens vs input_tokens, nested *_details.cached_tokens, camelCase
// token counts); each family fixes one precedence order.
type UsageFamily string

const (
	UsageFamilyOpenAI     UsageFamily = "openai"
	UsageFamilyAnthropic  UsageFamily = "anthropic"
	UsageFamilyGemini     UsageFamily = "gemini"
	UsageFamilyOpenRouter UsageFamily = "openrouter"
)

// usagePaths lists gjson paths in precedence order for each normalized field.
type usagePaths struct {
	input      []string
	output     []string
	cacheWrite []string
	cacheRead  []string
	reasoning  []string
	cost       []string
}

var usageAliases = map[UsageFamily]usagePaths{
	UsageFamilyOpenAI: {
		input:      []string{"prompt_tokens", "input_tokens"},
		output:     []string{"completion_tokens", "output_tokens"},
		cacheWrite: []string{"prompt_tokens_details.cache_write_tokens", "cache_creation_input_tokens"},
		cacheRead:  []string{"prompt_tokens_details.cached_tokens", "cache_read_input_tokens"},
		reasoning:  []string{"completion_tokens_details.reasoning_tokens", "output_tokens_details.reasoning_tokens"},
	},
	UsageFamilyAnthropic: {
		input:      []string{"input_tokens"},
		output:     []string{"output_tokens"},
		cacheWrite: []string{"cache_creation_input_tokens"},
		cacheRead:  []string{"cache_read_input_tokens"},
	},
	UsageFamilyGemini: {
		input:     []string{"promptTokenCount"},
		output:    []string{"candidatesTokenCount"},
		cacheRead: []string{"cachedContentTokenCount"},
		reasoning: []string{"thoughtsTokenCount"},
	},
	UsageFamilyOpenRouter: {
		input:      []string{"prompt_tokens", "input_tokens"},
		output:     []string{"completion_tokens", "output_tokens"},
		cacheWrite: []string{"prompt_tokens_details.cache_write_tokens"},
		cacheRead:  []string{"prompt_tokens_details.cached_tokens", "cache_read_input_tokens"},
		reasoning:  []string{"completion_tokens_details.reasoning_tokens"},
		cost:       []string{"cost"},
	},
}

// NormalizeUsage converts a provider-shaped raw usage payload into the
// canonical record. Absent fields default to 0, except reasoning tokens
// which stay nil when absent, and cost which stays nil unless the provider
// reports its own (OpenRouter does).
func NormalizeUsage(raw []byte, family UsageFamily) Usage {
	paths, ok := usageAliases[family]
	if !ok {
		paths = usageAliases[UsageFamilyOpenAI]
	}

	u := Usage{
		InputTokens:      firstInt(raw, paths.input),
		OutputTokens:     firstInt(raw, paths.output),
		CacheWriteTokens: firstInt(raw, paths.cacheWrite),
		CacheReadTokens:  firstInt(raw, paths.cacheRead),
	}

	for _, p := range paths.reasoning {
		if r := gjson.GetBytes(raw, p); r.Exists() {
			n := int(r.Int())
			u.ReasoningTokens = &n
			break
		}
	}

	for _, p := range paths.cost {
		if r := gjson.GetBytes(raw, p); r.Exists() {
			cost := r.Float()
			u.TotalCost = &cost
			break
		}
	}

	return u
}

// firstInt returns the first existing path's integer value, or 0.
func firstInt(raw []byte, paths []string) int {
	for _, p := range paths {
		if r := gjson.GetBytes(raw, p); r.Exists() {
			return int(r.Int())
		}
	}
	return 0
}

// effectivePricing resolves the model's prices for a turn, applying the first
// tier whose context-window threshold covers the turn's input tokens. Tier
// prices override base prices field-by-field.
func effectivePricing(info ModelInfo, inputTokens int) (input, output, cacheReads *float64) {
	input = info.InputPrice
	output = info.OutputPrice
	cacheReads = info.CacheReadsPrice

	for _, tier := range info.Tiers {
		if inputTokens <= tier.ContextWindow {
			if tier.InputPrice != nil {
				input = tier.InputPrice
			}
			if tier.OutputPrice != nil {
				output = tier.OutputPrice
			}
			if tier.CacheReadsPrice != nil {
				cacheReads = tier.CacheReadsPrice
			}
			break
		}
	}
	return input, output, cacheReads
}

// CalculateCost computes the turn's cost in USD from the model's pricing and
// the normalized usage. Reasoning tokens bill as output; cache-read tokens
// are excluded from the fresh-input bill and billed at the cache-read rate
// (free when the model declares none). Returns nil when input or output
// pricing is unknown after tier resolution, so unpriced turns are
// distinguishable from free ones.
func CalculateCost(info ModelInfo, u Usage) *float64 {
	inputPrice, outputPrice, cacheReadsPrice := effectivePricing(info, u.InputTokens)
	if inputPrice == nil || outputPrice == nil {
		return nil
	}

	freshInput := u.InputTokens - u.CacheReadTokens
	if freshInput < 0 {
		freshInput = 0
	}

	outputTokens := u.OutputTokens
	if u.ReasoningTokens != nil {
		outputTokens += *u.ReasoningTokens
	}

	cost := *inputPrice * float64(freshInput) / 1e6
	cost += *outputPrice * float64(outputTokens) / 1e6
	if cacheReadsPrice != nil {
		cost += *cacheReadsPrice * float64(u.CacheReadTokens) / 1e6
	}
	if info.CacheWritesPrice != nil {
		cost += *info.CacheWritesPrice * float64(u.CacheWriteTokens) / 1e6
	}
	return &cost
}

// FinalizeUsage fills the usage record's cost from the model's pricing unless
// the provider already reported one.
func FinalizeUsage(info ModelInfo, u Usage) Usage {
	if u.TotalCost == nil {
		u.TotalCost = CalculateCost(info, u)
	}
	return u
}
