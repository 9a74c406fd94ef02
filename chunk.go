package llmstream

import "fmt"

// ChunkKind discriminates the canonical stream chunk union.
type ChunkKind string

// Chunk kind constants. Every provider adapter normalizes its upstream wire
// format into a sequence of these kinds; consumers fold a turn's chunks into a
// final message by simple per-kind concatenation (the only cross-chunk
// dependency is tool-call reassembly, partial -> end/complete).
const (
	ChunkKindText            ChunkKind = "text"              // visible assistant content
	ChunkKindReasoning       ChunkKind = "reasoning"         // chain-of-thought, shown separately from the answer
	ChunkKindToolCallPartial ChunkKind = "tool_call_partial" // one accumulation step of a streamed tool call
	ChunkKindToolCallEnd     ChunkKind = "tool_call_end"     // a streamed tool call is complete
	ChunkKindToolCall        ChunkKind = "tool_call"         // a fully-formed tool call emitted atomically
	ChunkKindUsage           ChunkKind = "usage"             // token usage + cost, at most once per turn
	ChunkKindGrounding       ChunkKind = "grounding"         // web-search citation metadata
	ChunkKindError           ChunkKind = "error"             // terminal provider-surfaced mid-stream error
)

// StreamChunk is the canonical output of every provider adapter.
// Exactly one payload field is populated, selected by Kind.
type StreamChunk struct {
	Kind ChunkKind

	// Text holds the delta for ChunkKindText and ChunkKindReasoning.
	Text string

	// ToolDelta holds the fragment for ChunkKindToolCallPartial.
	ToolDelta *ToolCallDelta

	// ToolCallID identifies the completed call for ChunkKindToolCallEnd.
	ToolCallID string

	// ToolCall holds the complete call for ChunkKindToolCall.
	ToolCall *ToolCall

	// Usage holds the normalized usage record for ChunkKindUsage.
	Usage *Usage

	// Grounding holds citation sources for ChunkKindGrounding.
	Grounding []GroundingSource

	// Err holds the provider-tagged error for ChunkKindError.
	Err *StreamError
}

// ToolCallDelta is one accumulation step of a streamed tool call.
// Index is the positional identity within the turn and is stable across
// deltas for a given call; ID and Name may arrive once and then be omitted;
// Arguments is a string fragment to be concatenated byte-for-byte.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ToolCall is a complete, invokable tool call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON string, validated by the tool-invocation layer
}

// Usage is the normalized per-turn token accounting record.
// ReasoningTokens is nil when the provider reported none - its presence is
// itself meaningful (it signals a reasoning-capable turn). TotalCost is nil
// when the model's pricing is unknown, so "unpriced" stays distinguishable
// from "free".
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
	ReasoningTokens  *int
	TotalCost        *float64
}

// GroundingSource is one web-search citation attached to a turn.
type GroundingSource struct {
	Title   string
	URL     string
	Snippet *string
}

// StreamError is a provider-surfaced error carrying enough context for the
// caller to render an actionable message.
type StreamError struct {
	Provider string
	Model    string
	Message  string
	Err      error
}

func (e *StreamError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("provider '%s' (model '%s'): %s", e.Provider, e.Model, e.Message)
	}
	return fmt.Sprintf("provider '%s': %s", e.Provider, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// TextChunk wraps visible assistant text.
func TextChunk(text string) StreamChunk {
	return StreamChunk{Kind: ChunkKindText, Text: text}
}

// ReasoningChunk wraps chain-of-thought text.
func ReasoningChunk(text string) StreamChunk {
	return StreamChunk{Kind: ChunkKindReasoning, Text: text}
}

// ToolCallPartialChunk wraps one tool-call accumulation step.
func ToolCallPartialChunk(delta ToolCallDelta) StreamChunk {
	d := delta
	return StreamChunk{Kind: ChunkKindToolCallPartial, ToolDelta: &d}
}

// ToolCallEndChunk signals that the call identified by id is complete.
func ToolCallEndChunk(id string) StreamChunk {
	return StreamChunk{Kind: ChunkKindToolCallEnd, ToolCallID: id}
}

// CompleteToolCallChunk wraps an atomically-emitted tool call.
func CompleteToolCallChunk(call ToolCall) StreamChunk {
	c := call
	return StreamChunk{Kind: ChunkKindToolCall, ToolCall: &c}
}

// UsageChunk wraps the turn's usage record.
func UsageChunk(u Usage) StreamChunk {
	c := u
	return StreamChunk{Kind: ChunkKindUsage, Usage: &c}
}

// GroundingChunk wraps web-search citation sources.
func GroundingChunk(sources []GroundingSource) StreamChunk {
	return StreamChunk{Kind: ChunkKindGrounding, Grounding: sources}
}

// ErrorChunk wraps a terminal mid-stream error.
func ErrorChunk(err *StreamError) StreamChunk {
	return StreamChunk{Kind: ChunkKindError, Err: err}
}

// IsTerminal returns true for chunk kinds after which no further content
// chunks may be emitted in the same turn.
func (c StreamChunk) IsTerminal() bool {
	return c.Kind == ChunkKindError
}

// IsToolChunk returns true for any tool-call-related chunk kind.
func (c StreamChunk) IsToolChunk() bool {
	return c.Kind == ChunkKindToolCallPartial ||
		c.Kind == ChunkKindToolCallEnd ||
		c.Kind == ChunkKindToolCall
}
