package llmstream

import (
	"context"
)

// ProviderID represents a unique provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderOpenAI is the OpenAI-compatible Chat Completions API
	ProviderOpenAI ProviderID = "openai"

	// ProviderResponses is the OpenAI Responses API
	ProviderResponses ProviderID = "openai-responses"

	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderGemini is Google's Gemini API
	ProviderGemini ProviderID = "gemini"

	// ProviderOpenRouter is OpenRouter's unified proxy API
	ProviderOpenRouter ProviderID = "openrouter"

	// ProviderReplay is the scripted replay provider for testing
	ProviderReplay ProviderID = "replay"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderResponses, ProviderAnthropic, ProviderGemini, ProviderOpenRouter, ProviderReplay:
		return true
	default:
		return false
	}
}

// Message represents a single normalized message in the conversation.
type Message struct {
	// Role is "user", "assistant", or "tool"
	Role string

	// Content is the visible text content
	Content string

	// ReasoningContent carries prior-turn chain-of-thought for providers
	// that replay it (optional)
	ReasoningContent string

	// ToolCalls holds the assistant's tool invocations (assistant role only)
	ToolCalls []ToolCall

	// ToolCallID links a tool-result message to its invocation (tool role only)
	ToolCallID string
}

// CreateOptions carries the per-request knobs for a streaming turn.
type CreateOptions struct {
	// Model is the model identifier (e.g., "claude-sonnet-4-5")
	Model string

	// Info is the model's capability descriptor, consulted for parameter
	// resolution and cost computation
	Info ModelInfo

	// MaxTokens overrides the model's default max output tokens
	MaxTokens *int

	// Temperature overrides the model's default temperature
	Temperature *float64

	// Reasoning carries the user's reasoning settings
	Reasoning ReasoningSettings

	// Tools available for the model to use
	Tools []Tool

	// ToolChoice controls whether/which tools to use
	ToolChoice *ToolChoice

	// Metadata carries opaque caller tags (task id, etc.) passed to
	// providers that accept them
	Metadata map[string]string
}

// ResolveMaxTokens returns the effective max output tokens for the turn.
func (o *CreateOptions) ResolveMaxTokens(fallback int) int {
	if o.MaxTokens != nil && *o.MaxTokens > 0 {
		return *o.MaxTokens
	}
	return o.Info.MaxOutputTokens(fallback)
}

// ResolveTemperature returns the effective temperature, or nil when the
// model does not accept one or nothing was selected.
func (o *CreateOptions) ResolveTemperature() *float64 {
	if !o.Info.TemperatureSupported() {
		return nil
	}
	if o.Temperature != nil {
		return o.Temperature
	}
	return o.Info.DefaultTemperature
}

// Handler defines the interface that all provider adapters implement.
// This abstraction allows routing requests across multiple providers
// (OpenAI, Anthropic, Gemini, etc.) while exposing one canonical stream.
type Handler interface {
	// CreateMessage opens one streaming turn. It returns a channel emitting
	// canonical StreamChunks in strict upstream order; the channel is closed
	// when the turn completes, errors, or is cancelled.
	//
	// Failures before any content arrives are returned as an error - no
	// chunks are yielded for a connection that never started. Errors after
	// content started are emitted as a terminal error chunk.
	//
	// Every call owns fresh per-turn state; concurrent calls on one handler
	// never interleave.
	//
	// Usage:
	//   chunks, err := handler.CreateMessage(ctx, systemPrompt, messages, opts)
	//   if err != nil { return err }
	//   for chunk := range chunks {
	//     switch chunk.Kind { ... }
	//   }
	CreateMessage(ctx context.Context, systemPrompt string, messages []Message, opts *CreateOptions) (<-chan StreamChunk, error)

	// Name returns the provider identifier (e.g., "anthropic", "openai")
	Name() ProviderID
}
