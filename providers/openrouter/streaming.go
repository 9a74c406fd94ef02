package openrouter

import (
	"context"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// ChatCompletionChunk represents a streaming chunk from OpenRouter.
type ChatCompletionChunk struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"` // "chat.completion.chunk"
	Model   string          `json:"model"`
	Choices []ChunkChoice   `json:"choices"`
	Usage   json.RawMessage `json:"usage,omitempty"`
	Error   *StreamAPIError `json:"error,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta represents incremental updates in a chunk.
type Delta struct {
	Role             *string           `json:"role,omitempty"`
	Content          *string           `json:"content,omitempty"`
	ToolCalls        []ToolCallDelta   `json:"tool_calls,omitempty"`
	Reasoning        *string           `json:"reasoning,omitempty"`         // Simple reasoning field (often just placeholder)
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"` // Actual thinking content from models like kimi-k2-thinking
	Annotations      []Annotation      `json:"annotations,omitempty"`       // Web search results from :online models
}

// ToolCallDelta is one tool-call fragment in a chunk.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Function FunctionCall `json:"function"`
}

// StreamAPIError is an error envelope delivered inside a 200 stream.
type StreamAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// streamEvents reads SSE events and emits normalized chunks.
//
// Content deltas pass through a <think> tag matcher: some proxied models
// have no reasoning channel and inline their thinking instead, and both
// encodings must normalize identically.
func (p *Provider) streamEvents(ctx context.Context, body io.Reader, opts *llmstream.CreateOptions, out chan<- llmstream.StreamChunk) {
	matcher := llmstream.NewTagMatcher("think", func(tc llmstream.TagChunk) llmstream.StreamChunk {
		if tc.Matched {
			return llmstream.ReasoningChunk(tc.Data)
		}
		return llmstream.TextChunk(tc.Data)
	})
	acc := llmstream.NewToolCallAccumulator(p.logger)
	var usageRaw json.RawMessage

	send := func(chunk llmstream.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := llmstream.NewSSEScanner(body)
	for {
		if ctx.Err() != nil {
			return
		}

		ev, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			send(llmstream.ErrorChunk(&llmstream.StreamError{
				Provider: p.Name().String(),
				Model:    opts.Model,
				Message:  err.Error(),
				Err:      err,
			}))
			return
		}
		if ev.Data == llmstream.DoneSentinel {
			break
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			// Ignore unparseable chunks (might be keep-alive or other messages)
			p.logger.Debug("skipping unparseable stream payload", zap.Error(err))
			continue
		}

		if chunk.Error != nil {
			send(llmstream.ErrorChunk(&llmstream.StreamError{
				Provider: p.Name().String(),
				Model:    opts.Model,
				Message:  chunk.Error.Message,
				Err:      llmstream.ErrProviderUnavailable,
			}))
			return
		}

		if len(chunk.Usage) > 0 && string(chunk.Usage) != "null" {
			usageRaw = chunk.Usage
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if sources := convertAnnotations(delta.Annotations); len(sources) > 0 {
			if !send(llmstream.GroundingChunk(sources)) {
				return
			}
		}

		if reasoning := extractReasoningText(delta); reasoning != "" {
			if !send(llmstream.ReasoningChunk(reasoning)) {
				return
			}
		}

		if delta.Content != nil && *delta.Content != "" {
			for _, c := range matcher.Update(*delta.Content) {
				if !send(c) {
					return
				}
			}
		}

		for _, tc := range delta.ToolCalls {
			d := llmstream.ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
			acc.Add(d)
			if !send(llmstream.ToolCallPartialChunk(d)) {
				return
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason == "tool_calls" {
			for _, call := range acc.FinishOpen() {
				if !send(llmstream.ToolCallEndChunk(call.ID)) {
					return
				}
			}
		}
	}

	for _, c := range matcher.Final() {
		if !send(c) {
			return
		}
	}

	for _, call := range acc.FinishOpen() {
		if !send(llmstream.ToolCallEndChunk(call.ID)) {
			return
		}
	}

	if usageRaw != nil {
		// OpenRouter reports its own cost; NormalizeUsage keeps it and
		// FinalizeUsage only computes a cost when none was reported.
		usage := llmstream.NormalizeUsage(usageRaw, llmstream.UsageFamilyOpenRouter)
		usage = llmstream.FinalizeUsage(opts.Info, usage)
		send(llmstream.UsageChunk(usage))
	}
}
