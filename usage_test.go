package llmstream

import (
	"math"
	"testing"
)

func TestNormalizeUsageFamilies(t *testing.T) {
	tests := []struct {
		name   string
		family UsageFamily
		raw    string
		want   Usage
	}{
		{
			name:   "openai chat completions shape",
			family: UsageFamilyOpenAI,
			raw: `{"prompt_tokens":100,"completion_tokens":50,
				"prompt_tokens_details":{"cached_tokens":20},
				"completion_tokens_details":{"reasoning_tokens":30}}`,
			want: Usage{InputTokens: 100, OutputTokens: 50, CacheReadTokens: 20, ReasoningTokens: intPtr(30)},
		},
		{
			name:   "openai responses shape via aliases",
			family: UsageFamilyOpenAI,
			raw: `{"input_tokens":200,"output_tokens":80,
				"output_tokens_details":{"reasoning_tokens":40}}`,
			want: Usage{InputTokens: 200, OutputTokens: 80, ReasoningTokens: intPtr(40)},
		},
		{
			name:   "alias precedence prefers prompt_tokens",
			family: UsageFamilyOpenAI,
			raw:    `{"prompt_tokens":10,"input_tokens":99,"completion_tokens":5,"output_tokens":77}`,
			want:   Usage{InputTokens: 10, OutputTokens: 5},
		},
		{
			name:   "anthropic shape",
			family: UsageFamilyAnthropic,
			raw:    `{"input_tokens":10,"output_tokens":20,"cache_creation_input_tokens":5,"cache_read_input_tokens":3}`,
			want:   Usage{InputTokens: 10, OutputTokens: 20, CacheWriteTokens: 5, CacheReadTokens: 3},
		},
		{
			name:   "gemini camelCase shape",
			family: UsageFamilyGemini,
			raw:    `{"promptTokenCount":15,"candidatesTokenCount":25,"cachedContentTokenCount":4,"thoughtsTokenCount":9}`,
			want:   Usage{InputTokens: 15, OutputTokens: 25, CacheReadTokens: 4, ReasoningTokens: intPtr(9)},
		},
		{
			name:   "openrouter reports its own cost",
			family: UsageFamilyOpenRouter,
			raw:    `{"prompt_tokens":100,"completion_tokens":50,"cost":0.0015}`,
			want:   Usage{InputTokens: 100, OutputTokens: 50, TotalCost: floatPtr(0.0015)},
		},
		{
			name:   "absent fields default to zero, reasoning stays nil",
			family: UsageFamilyOpenAI,
			raw:    `{}`,
			want:   Usage{},
		},
		{
			name:   "reasoning zero is distinct from absent",
			family: UsageFamilyOpenAI,
			raw:    `{"prompt_tokens":1,"completion_tokens":1,"completion_tokens_details":{"reasoning_tokens":0}}`,
			want:   Usage{InputTokens: 1, OutputTokens: 1, ReasoningTokens: intPtr(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeUsage([]byte(tt.raw), tt.family)

			if got.InputTokens != tt.want.InputTokens ||
				got.OutputTokens != tt.want.OutputTokens ||
				got.CacheWriteTokens != tt.want.CacheWriteTokens ||
				got.CacheReadTokens != tt.want.CacheReadTokens {
				t.Errorf("tokens = %+v, want %+v", got, tt.want)
			}

			if (got.ReasoningTokens == nil) != (tt.want.ReasoningTokens == nil) {
				t.Errorf("reasoning presence = %v, want %v", got.ReasoningTokens, tt.want.ReasoningTokens)
			} else if got.ReasoningTokens != nil && *got.ReasoningTokens != *tt.want.ReasoningTokens {
				t.Errorf("reasoning = %d, want %d", *got.ReasoningTokens, *tt.want.ReasoningTokens)
			}

			if (got.TotalCost == nil) != (tt.want.TotalCost == nil) {
				t.Errorf("cost presence = %v, want %v", got.TotalCost, tt.want.TotalCost)
			} else if got.TotalCost != nil && math.Abs(*got.TotalCost-*tt.want.TotalCost) > 1e-12 {
				t.Errorf("cost = %v, want %v", *got.TotalCost, *tt.want.TotalCost)
			}
		})
	}
}

func TestCalculateCost(t *testing.T) {
	priced := ModelInfo{
		InputPrice:      floatPtr(3.0),
		OutputPrice:     floatPtr(15.0),
		CacheReadsPrice: floatPtr(0.3),
	}

	t.Run("basic", func(t *testing.T) {
		cost := CalculateCost(priced, Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		if want := 18.0; math.Abs(*cost-want) > 1e-9 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})

	t.Run("cache reads billed at cache rate, not input rate", func(t *testing.T) {
		// 1M input of which 400k came from cache.
		cost := CalculateCost(priced, Usage{InputTokens: 1_000_000, CacheReadTokens: 400_000})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		want := 3.0*0.6 + 0.3*0.4
		if math.Abs(*cost-want) > 1e-9 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})

	t.Run("reasoning tokens bill as output", func(t *testing.T) {
		cost := CalculateCost(priced, Usage{OutputTokens: 500_000, ReasoningTokens: intPtr(500_000)})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		if want := 15.0; math.Abs(*cost-want) > 1e-9 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})

	t.Run("cache writes billed when priced", func(t *testing.T) {
		info := priced
		info.CacheWritesPrice = floatPtr(3.75)
		cost := CalculateCost(info, Usage{CacheWriteTokens: 1_000_000})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		if want := 3.75; math.Abs(*cost-want) > 1e-9 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})

	t.Run("unpriced model yields nil, not zero", func(t *testing.T) {
		if cost := CalculateCost(ModelInfo{}, Usage{InputTokens: 100, OutputTokens: 100}); cost != nil {
			t.Errorf("cost = %v, want nil", *cost)
		}
	})

	t.Run("cache read exceeding input clamps fresh input to zero", func(t *testing.T) {
		cost := CalculateCost(priced, Usage{InputTokens: 100, CacheReadTokens: 200})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		want := 0.3 * 200 / 1e6
		if math.Abs(*cost-want) > 1e-12 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})
}

func TestTieredPricing(t *testing.T) {
	info := ModelInfo{
		InputPrice:      floatPtr(1.25),
		OutputPrice:     floatPtr(10.0),
		CacheReadsPrice: floatPtr(0.31),
		Tiers: []PricingTier{
			{ContextWindow: 200_000, InputPrice: floatPtr(1.25), OutputPrice: floatPtr(10.0)},
			{ContextWindow: 1_048_576, InputPrice: floatPtr(2.5), OutputPrice: floatPtr(15.0)},
		},
	}

	t.Run("small prompt uses first tier", func(t *testing.T) {
		cost := CalculateCost(info, Usage{InputTokens: 100_000, OutputTokens: 1_000_000})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		want := 1.25*0.1 + 10.0
		if math.Abs(*cost-want) > 1e-9 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})

	t.Run("large prompt crosses into second tier", func(t *testing.T) {
		cost := CalculateCost(info, Usage{InputTokens: 500_000})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		want := 2.5 * 0.5
		if math.Abs(*cost-want) > 1e-9 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})

	t.Run("tier without cache price falls back to base", func(t *testing.T) {
		// Second tier omits cache_reads_price; the base 0.31 applies.
		cost := CalculateCost(info, Usage{InputTokens: 500_000, CacheReadTokens: 500_000})
		if cost == nil {
			t.Fatal("cost = nil")
		}
		want := 0.31 * 0.5
		if math.Abs(*cost-want) > 1e-9 {
			t.Errorf("cost = %v, want %v", *cost, want)
		}
	})
}

func TestFinalizeUsage(t *testing.T) {
	info := ModelInfo{InputPrice: floatPtr(1.0), OutputPrice: floatPtr(2.0)}

	t.Run("computes cost when absent", func(t *testing.T) {
		u := FinalizeUsage(info, Usage{InputTokens: 1_000_000})
		if u.TotalCost == nil || math.Abs(*u.TotalCost-1.0) > 1e-9 {
			t.Errorf("TotalCost = %v, want 1.0", u.TotalCost)
		}
	})

	t.Run("provider-reported cost is preserved", func(t *testing.T) {
		reported := 0.42
		u := FinalizeUsage(info, Usage{InputTokens: 1_000_000, TotalCost: &reported})
		if u.TotalCost == nil || *u.TotalCost != 0.42 {
			t.Errorf("TotalCost = %v, want 0.42", u.TotalCost)
		}
	})
}
