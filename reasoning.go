package llmstream

// Reasoning depth is requested through two incompatible provider-side knobs:
// a numeric token allowance (budget) or a discrete level (effort). The
// resolvers below compute the provider-specific request parameter from a
// model's capability descriptor plus the user's settings. They are pure and
// produce a fresh result per request.
//
// Shared priority rule: when a model supports both knobs, budget wins
// wherever the target provider speaks budget at the wire level. Providers
// that only speak effort (plain Chat Completions) use the effort resolver
// regardless.

// Effort level sentinels. "disable" and "none" mean no reasoning and are
// never passed through to a provider literally; "minimal" is omitted
// entirely by the internal-style resolver.
const (
	EffortMinimal = "minimal"
	EffortLow     = "low"
	EffortMedium  = "medium"
	EffortHigh    = "high"
	EffortDisable = "disable"
	EffortNone    = "none"
)

// Thinking budget defaults and floors. Low-minimum variants use their own
// smaller constant both as default and as floor.
const (
	DefaultReasoningBudget = 8192
	MinReasoningBudget     = 1024
	LowMinReasoningBudget  = 128
)

// ReasoningSettings carries the user-facing reasoning knobs for one request.
type ReasoningSettings struct {
	// EnableReasoningEffort opts an optional-reasoning model into reasoning.
	EnableReasoningEffort bool

	// ReasoningEffort is the explicitly selected effort level, overriding
	// any model default. Nil when the user made no selection.
	ReasoningEffort *string

	// ReasoningBudget is the selected thinking-token allowance. Passed
	// through verbatim by the budget resolver, defaulting and clamping
	// happen downstream once max output tokens are known.
	ReasoningBudget *int
}

// effortSelection resolves the effective effort level: the explicit user
// selection if present, otherwise the model's declared default.
func effortSelection(info ModelInfo, s ReasoningSettings) *string {
	if s.ReasoningEffort != nil {
		return s.ReasoningEffort
	}
	return info.ReasoningEffort
}

// BudgetReasoning is the budget-shaped request parameter
// (Anthropic-style {type, budget_tokens}).
type BudgetReasoning struct {
	Type         string `json:"type"`
	BudgetTokens *int   `json:"budget_tokens,omitempty"`
}

// ResolveBudgetReasoning returns the budget-shaped parameter for providers
// that speak token budgets. The budget value is passed through verbatim -
// possibly nil or zero - defaults are applied by ClampReasoningBudget once
// max output tokens are known. Returns nil when the model does not reason by
// budget or the user did not opt in.
func ResolveBudgetReasoning(info ModelInfo, s ReasoningSettings) *BudgetReasoning {
	if info.RequiredReasoningBudget || (info.SupportsReasoningBudget && s.EnableReasoningEffort) {
		return &BudgetReasoning{Type: "enabled", BudgetTokens: s.ReasoningBudget}
	}
	return nil
}

// EffortReasoning is the effort-shaped request parameter
// (OpenAI-style reasoning_effort).
type EffortReasoning struct {
	Effort string `json:"reasoning_effort"`
}

// ResolveEffortReasoning returns the effort-shaped parameter for providers
// that only speak effort levels. The "disable" sentinel resolves to no
// reasoning rather than being passed through. Returns nil when neither the
// user nor the model supplies an effort, or when the model declares no
// effort support at all.
func ResolveEffortReasoning(info ModelInfo, s ReasoningSettings) *EffortReasoning {
	effort := effortSelection(info, s)
	if effort == nil {
		return nil
	}
	if !info.SupportsReasoningEffort.Supported && info.ReasoningEffort == nil {
		return nil
	}
	if *effort == EffortDisable {
		return nil
	}
	return &EffortReasoning{Effort: *effort}
}

// GeminiThinking is the Gemini-shaped thinking configuration. Exactly one of
// ThinkingLevel or ThinkingBudget is set.
type GeminiThinking struct {
	ThinkingLevel   *string `json:"thinkingLevel,omitempty"`
	ThinkingBudget  *int    `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool    `json:"includeThoughts"`
}

// ResolveGeminiThinking returns the Gemini thinking configuration. Models
// declaring their effort support as an array of discrete levels are
// effort-only - budget must not be used even if present - unless the model
// requires a budget, in which case budget takes precedence unconditionally.
// Both "disable" and "none" resolve to no thinking.
func ResolveGeminiThinking(info ModelInfo, s ReasoningSettings) *GeminiThinking {
	if info.RequiredReasoningBudget {
		return &GeminiThinking{ThinkingBudget: s.ReasoningBudget, IncludeThoughts: true}
	}

	if info.SupportsReasoningEffort.HasLevels() {
		effort := effortSelection(info, s)
		if effort == nil || *effort == EffortDisable || *effort == EffortNone {
			return nil
		}
		level := *effort
		return &GeminiThinking{ThinkingLevel: &level, IncludeThoughts: true}
	}

	if info.SupportsReasoningBudget && s.EnableReasoningEffort {
		return &GeminiThinking{ThinkingBudget: s.ReasoningBudget, IncludeThoughts: true}
	}

	return nil
}

// InternalReasoning is the internal-style reasoning parameter
// ({enabled, effort?}).
type InternalReasoning struct {
	Enabled bool   `json:"enabled"`
	Effort  string `json:"effort,omitempty"`
}

// ResolveInternalReasoning returns the internal-style parameter: disabled
// when effort is unset or explicitly disabled, enabled with the effort for
// any non-minimal level, and omitted entirely (nil) for "minimal".
func ResolveInternalReasoning(s ReasoningSettings) *InternalReasoning {
	if s.ReasoningEffort == nil || *s.ReasoningEffort == EffortDisable || *s.ReasoningEffort == EffortNone {
		return &InternalReasoning{Enabled: false}
	}
	if *s.ReasoningEffort == EffortMinimal {
		return nil
	}
	return &InternalReasoning{Enabled: true, Effort: *s.ReasoningEffort}
}

// ClampReasoningBudget applies the provider-agnostic budget clamp once max
// output tokens are known. A nil or zero budget takes the default; the
// result never exceeds 80% of maxTokens and never falls below the model's
// floor. The cap is applied before the floor so the floor wins on tiny
// budgets.
func ClampReasoningBudget(budget *int, maxTokens int, info ModelInfo) int {
	def, floor := DefaultReasoningBudget, MinReasoningBudget
	if info.LowReasoningMinimum {
		def, floor = LowMinReasoningBudget, LowMinReasoningBudget
	}

	b := def
	if budget != nil && *budget > 0 {
		b = *budget
	}

	if cap := maxTokens * 8 / 10; b > cap {
		b = cap
	}
	if b < floor {
		b = floor
	}
	return b
}
