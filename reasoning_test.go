package llmstream

import (
	"testing"
)

func strPtr(s string) *string    { return &s }
func intPtr(n int) *int          { return &n }
func floatPtr(f float64) *float64 { return &f }

func TestResolveBudgetReasoning(t *testing.T) {
	tests := []struct {
		name       string
		info       ModelInfo
		settings   ReasoningSettings
		wantBudget *int // nil means resolver returns nil
		wantSet    bool
	}{
		{
			name:     "required budget ignores opt-in",
			info:     ModelInfo{RequiredReasoningBudget: true},
			settings: ReasoningSettings{},
			wantSet:  true,
		},
		{
			name:       "supported and enabled passes budget verbatim",
			info:       ModelInfo{SupportsReasoningBudget: true},
			settings:   ReasoningSettings{EnableReasoningEffort: true, ReasoningBudget: intPtr(2048)},
			wantBudget: intPtr(2048),
			wantSet:    true,
		},
		{
			name:     "supported but not enabled",
			info:     ModelInfo{SupportsReasoningBudget: true},
			settings: ReasoningSettings{ReasoningBudget: intPtr(2048)},
			wantSet:  false,
		},
		{
			name:     "unsupported",
			info:     ModelInfo{},
			settings: ReasoningSettings{EnableReasoningEffort: true},
			wantSet:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveBudgetReasoning(tt.info, tt.settings)
			if !tt.wantSet {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("got nil, want parameter")
			}
			if got.Type != "enabled" {
				t.Errorf("type = %q", got.Type)
			}
			if tt.wantBudget != nil {
				if got.BudgetTokens == nil || *got.BudgetTokens != *tt.wantBudget {
					t.Errorf("budget = %v, want %d", got.BudgetTokens, *tt.wantBudget)
				}
			}
		})
	}
}

func TestResolveEffortReasoning(t *testing.T) {
	boolSupport := EffortSupport{Supported: true}

	tests := []struct {
		name     string
		info     ModelInfo
		settings ReasoningSettings
		want     string // empty means resolver returns nil
	}{
		{
			name:     "user override wins over model default",
			info:     ModelInfo{SupportsReasoningEffort: boolSupport, ReasoningEffort: strPtr(EffortMedium)},
			settings: ReasoningSettings{ReasoningEffort: strPtr(EffortHigh)},
			want:     EffortHigh,
		},
		{
			name: "model default applies without user selection",
			info: ModelInfo{SupportsReasoningEffort: boolSupport, ReasoningEffort: strPtr(EffortMedium)},
			want: EffortMedium,
		},
		{
			name:     "disable sentinel resolves to nil",
			info:     ModelInfo{SupportsReasoningEffort: boolSupport, ReasoningEffort: strPtr(EffortMedium)},
			settings: ReasoningSettings{ReasoningEffort: strPtr(EffortDisable)},
			want:     "",
		},
		{
			name: "no effort anywhere",
			info: ModelInfo{SupportsReasoningEffort: boolSupport},
			want: "",
		},
		{
			name:     "unsupported model ignores user effort",
			info:     ModelInfo{},
			settings: ReasoningSettings{ReasoningEffort: strPtr(EffortHigh)},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveEffortReasoning(tt.info, tt.settings)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || got.Effort != tt.want {
				t.Fatalf("got %+v, want effort %q", got, tt.want)
			}
		})
	}
}

func TestResolveGeminiThinking(t *testing.T) {
	levels := EffortSupport{Supported: true, Levels: []string{EffortLow, EffortHigh}}

	t.Run("required budget wins even on effort-only model", func(t *testing.T) {
		info := ModelInfo{RequiredReasoningBudget: true, SupportsReasoningEffort: levels}
		got := ResolveGeminiThinking(info, ReasoningSettings{ReasoningBudget: intPtr(4096)})
		if got == nil || got.ThinkingBudget == nil || *got.ThinkingBudget != 4096 {
			t.Fatalf("got %+v, want budget 4096", got)
		}
		if got.ThinkingLevel != nil {
			t.Errorf("level set alongside budget: %+v", got)
		}
		if !got.IncludeThoughts {
			t.Error("IncludeThoughts = false")
		}
	})

	t.Run("levels declaration selects thinkingLevel", func(t *testing.T) {
		info := ModelInfo{SupportsReasoningEffort: levels, ReasoningEffort: strPtr(EffortHigh)}
		got := ResolveGeminiThinking(info, ReasoningSettings{})
		if got == nil || got.ThinkingLevel == nil || *got.ThinkingLevel != EffortHigh {
			t.Fatalf("got %+v, want level %q", got, EffortHigh)
		}
		if got.ThinkingBudget != nil {
			t.Errorf("budget set on effort-only model: %+v", got)
		}
	})

	t.Run("levels model with disable resolves to nil", func(t *testing.T) {
		info := ModelInfo{SupportsReasoningEffort: levels, ReasoningEffort: strPtr(EffortHigh)}
		for _, sentinel := range []string{EffortDisable, EffortNone} {
			got := ResolveGeminiThinking(info, ReasoningSettings{ReasoningEffort: strPtr(sentinel)})
			if got != nil {
				t.Errorf("sentinel %q: got %+v, want nil", sentinel, got)
			}
		}
	})

	t.Run("budget model enabled", func(t *testing.T) {
		info := ModelInfo{SupportsReasoningBudget: true}
		got := ResolveGeminiThinking(info, ReasoningSettings{EnableReasoningEffort: true, ReasoningBudget: intPtr(1000)})
		if got == nil || got.ThinkingBudget == nil || *got.ThinkingBudget != 1000 {
			t.Fatalf("got %+v, want budget 1000", got)
		}
	})

	t.Run("nothing supported", func(t *testing.T) {
		if got := ResolveGeminiThinking(ModelInfo{}, ReasoningSettings{EnableReasoningEffort: true}); got != nil {
			t.Errorf("got %+v, want nil", got)
		}
	})
}

func TestResolveInternalReasoning(t *testing.T) {
	tests := []struct {
		name   string
		effort *string
		want   *InternalReasoning
	}{
		{name: "unset disables", effort: nil, want: &InternalReasoning{Enabled: false}},
		{name: "disable sentinel", effort: strPtr(EffortDisable), want: &InternalReasoning{Enabled: false}},
		{name: "none sentinel", effort: strPtr(EffortNone), want: &InternalReasoning{Enabled: false}},
		{name: "minimal omits entirely", effort: strPtr(EffortMinimal), want: nil},
		{name: "high enables", effort: strPtr(EffortHigh), want: &InternalReasoning{Enabled: true, Effort: EffortHigh}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveInternalReasoning(ReasoningSettings{ReasoningEffort: tt.effort})
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClampReasoningBudget(t *testing.T) {
	tests := []struct {
		name      string
		budget    *int
		maxTokens int
		info      ModelInfo
		want      int
	}{
		{name: "nil budget takes default", budget: nil, maxTokens: 64000, want: DefaultReasoningBudget},
		{name: "zero budget takes default", budget: intPtr(0), maxTokens: 64000, want: DefaultReasoningBudget},
		{name: "explicit budget passes when within cap", budget: intPtr(4000), maxTokens: 64000, want: 4000},
		{name: "cap at 80 percent of max tokens", budget: intPtr(60000), maxTokens: 10000, want: 8000},
		// Cap before floor: with tiny maxTokens the cap lands below the
		// floor and the floor wins.
		{name: "floor wins after cap", budget: intPtr(5000), maxTokens: 1000, want: MinReasoningBudget},
		{name: "low minimum default", budget: nil, maxTokens: 64000, info: ModelInfo{LowReasoningMinimum: true}, want: LowMinReasoningBudget},
		{name: "low minimum floor", budget: intPtr(64), maxTokens: 64000, info: ModelInfo{LowReasoningMinimum: true}, want: LowMinReasoningBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampReasoningBudget(tt.budget, tt.maxTokens, tt.info)
			if got != tt.want {
				t.Errorf("ClampReasoningBudget() = %d, want %d", got, tt.want)
			}
		})
	}
}
