package openai

import (
	"context"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// chatCompletionChunk is one SSE data payload from a streaming completion.
type chatCompletionChunk struct {
	ID      string          `json:"id"`
	Choices []chunkChoice   `json:"choices"`
	Usage   json.RawMessage `json:"usage,omitempty"`
	Error   *streamAPIError `json:"error,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

type chunkDelta struct {
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ToolCalls        []chunkToolCall `json:"tool_calls,omitempty"`
}

type chunkToolCall struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Function chunkFunctionCall `json:"function"`
}

type chunkFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// streamAPIError is an error envelope some backends deliver inside a 200
// stream instead of failing the request up front.
type streamAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// streamEvents consumes the SSE body and emits normalized chunks.
//
// Ordering invariants: tool call end chunks only follow the matching partial
// chunks, and usage is emitted last, after the tag matcher has flushed.
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

	fault := func(err error) {
		send(llmstream.ErrorChunk(&llmstream.StreamError{
			Provider: p.Name().String(),
			Model:    opts.Model,
			Message:  err.Error(),
			Err:      err,
		}))
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
			fault(err)
			return
		}
		if ev.Data == llmstream.DoneSentinel {
			break
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			p.logger.Debug("skipping unparseable stream payload", zap.Error(err))
			continue
		}

		// Some gateways report mid-stream failures as an error object on a
		// 200 response.
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

		// Dedicated reasoning fields bypass the tag matcher. "reasoning" is
		// the variant some compatible backends use.
		if choice.Delta.ReasoningContent != "" {
			if !send(llmstream.ReasoningChunk(choice.Delta.ReasoningContent)) {
				return
			}
		} else if choice.Delta.Reasoning != "" {
			if !send(llmstream.ReasoningChunk(choice.Delta.Reasoning)) {
				return
			}
		}

		if choice.Delta.Content != "" {
			for _, c := range matcher.Update(choice.Delta.Content) {
				if !send(c) {
					return
				}
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			delta := llmstream.ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
			acc.Add(delta)
			if !send(llmstream.ToolCallPartialChunk(delta)) {
				return
			}
		}

		if choice.FinishReason == "tool_calls" {
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

	// A stream that drops without a tool_calls finish reason still closes
	// its accumulated calls so consumers never see dangling partials.
	for _, call := range acc.FinishOpen() {
		if !send(llmstream.ToolCallEndChunk(call.ID)) {
			return
		}
	}

	if usageRaw != nil {
		usage := llmstream.NormalizeUsage(usageRaw, llmstream.UsageFamilyOpenAI)
		usage = llmstream.FinalizeUsage(opts.Info, usage)
		send(llmstream.UsageChunk(usage))
	}
}
