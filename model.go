package llmstream

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// EffortSupport describes a model's reasoning-effort support, which providers
// declare either as a plain boolean or as an array of discrete levels. A
// model declaring discrete levels is "effort-only": it cannot take a token
// budget unless its descriptor also requires one.
type EffortSupport struct {
	// Supported is true when the model accepts an effort parameter at all.
	Supported bool

	// Levels lists the discrete effort levels when the declaration was an
	// array. Nil when the declaration was boolean.
	Levels []string
}

// HasLevels returns true when the declaration was an array of discrete levels.
func (e EffortSupport) HasLevels() bool {
	return e.Levels != nil
}

// Allows returns true if the given effort level is acceptable for this model.
// A boolean declaration accepts any level.
func (e EffortSupport) Allows(level string) bool {
	if !e.Supported {
		return false
	}
	if e.Levels == nil {
		return true
	}
	for _, l := range e.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// UnmarshalYAML accepts either a boolean or a sequence of level strings.
func (e *EffortSupport) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := value.Decode(&b); err != nil {
			return fmt.Errorf("effort support: %w", err)
		}
		*e = EffortSupport{Supported: b}
		return nil
	case yaml.SequenceNode:
		var levels []string
		if err := value.Decode(&levels); err != nil {
			return fmt.Errorf("effort support: %w", err)
		}
		*e = EffortSupport{Supported: true, Levels: levels}
		return nil
	default:
		return fmt.Errorf("effort support: expected bool or sequence, got yaml kind %d", value.Kind)
	}
}

// UnmarshalJSON accepts either a boolean or an array of level strings.
func (e *EffortSupport) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*e = EffortSupport{Supported: b}
		return nil
	}
	var levels []string
	if err := json.Unmarshal(data, &levels); err != nil {
		return fmt.Errorf("effort support: expected bool or array: %w", err)
	}
	*e = EffortSupport{Supported: true, Levels: levels}
	return nil
}

// PricingTier is a price break keyed by context-window size. A tier need not
// redefine every price; unset fields fall back to the model's base prices.
type PricingTier struct {
	ContextWindow   int      `yaml:"context_window" json:"context_window"`
	InputPrice      *float64 `yaml:"input_price,omitempty" json:"input_price,omitempty"`
	OutputPrice     *float64 `yaml:"output_price,omitempty" json:"output_price,omitempty"`
	CacheReadsPrice *float64 `yaml:"cache_reads_price,omitempty" json:"cache_reads_price,omitempty"`
}

// ModelInfo is the read-only capability descriptor for one model. It is
// loaded once from an embedded or user-supplied table and consulted during a
// turn for request parameter resolution and cost computation. Prices are USD
// per million tokens.
type ModelInfo struct {
	ContextWindow       int  `yaml:"context_window" json:"context_window"`
	MaxTokens           *int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	SupportsPromptCache bool `yaml:"supports_prompt_cache" json:"supports_prompt_cache"`

	// SupportsReasoningBudget marks models that can take a numeric thinking
	// token allowance; RequiredReasoningBudget marks hybrid models that must.
	SupportsReasoningBudget bool `yaml:"supports_reasoning_budget,omitempty" json:"supports_reasoning_budget,omitempty"`
	RequiredReasoningBudget bool `yaml:"required_reasoning_budget,omitempty" json:"required_reasoning_budget,omitempty"`

	// SupportsReasoningEffort is the bool-or-levels effort declaration.
	SupportsReasoningEffort EffortSupport `yaml:"supports_reasoning_effort,omitempty" json:"supports_reasoning_effort,omitempty"`

	// ReasoningEffort is the model's default effort level, if it declares one.
	ReasoningEffort *string `yaml:"reasoning_effort,omitempty" json:"reasoning_effort,omitempty"`

	// LowReasoningMinimum flags variants whose thinking floor (and default)
	// is far below the standard minimum.
	LowReasoningMinimum bool `yaml:"low_reasoning_minimum,omitempty" json:"low_reasoning_minimum,omitempty"`

	DefaultTemperature  *float64 `yaml:"default_temperature,omitempty" json:"default_temperature,omitempty"`
	SupportsTemperature *bool    `yaml:"supports_temperature,omitempty" json:"supports_temperature,omitempty"`

	InputPrice       *float64 `yaml:"input_price,omitempty" json:"input_price,omitempty"`
	OutputPrice      *float64 `yaml:"output_price,omitempty" json:"output_price,omitempty"`
	CacheWritesPrice *float64 `yaml:"cache_writes_price,omitempty" json:"cache_writes_price,omitempty"`
	CacheReadsPrice  *float64 `yaml:"cache_reads_price,omitempty" json:"cache_reads_price,omitempty"`

	// Tiers holds context-window price breaks, smallest window first.
	Tiers []PricingTier `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// MaxOutputTokens returns the model's max output tokens, falling back to the
// given default when the descriptor leaves it unset.
func (m ModelInfo) MaxOutputTokens(fallback int) int {
	if m.MaxTokens != nil && *m.MaxTokens > 0 {
		return *m.MaxTokens
	}
	return fallback
}

// TemperatureSupported reports whether the model accepts a temperature
// parameter. Unset means supported.
func (m ModelInfo) TemperatureSupported() bool {
	return m.SupportsTemperature == nil || *m.SupportsTemperature
}
