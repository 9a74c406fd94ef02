package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// toolBlock tracks one in-flight tool_use content block by its stream index,
// so input_json deltas and the block stop can be attributed to the call id.
type toolBlock struct {
	id   string
	name string
}

// streamEvents consumes the SDK event stream and emits normalized chunks.
//
// Anthropic stream events:
// - message_start: message metadata, usage comes via accumulation
// - content_block_start: new block (text, thinking, tool_use)
// - content_block_delta: text_delta, thinking_delta, signature_delta, input_json_delta
// - content_block_stop: block finished; finalizes tool calls
// - message_delta / message_stop: stop reason and final usage
func (p *Provider) streamEvents(ctx context.Context, apiParams anthropic.MessageNewParams, opts *llmstream.CreateOptions, out chan<- llmstream.StreamChunk) {
	send := func(chunk llmstream.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	stream := p.client.Messages.NewStreaming(ctx, apiParams)

	acc := llmstream.NewToolCallAccumulator(p.logger)
	toolBlocks := make(map[int]toolBlock)

	// Accumulator for final message metadata and usage. usageSeen tracks
	// whether any usage-bearing event actually arrived; a stream that never
	// reports usage emits no usage chunk.
	message := anthropic.Message{}
	usageSeen := false

	for stream.Next() {
		event := stream.Current()

		if err := message.Accumulate(event); err != nil {
			p.logger.Debug("failed to accumulate stream event", zap.Error(err))
		}

		switch e := event.AsAny().(type) {
		case anthropic.MessageStartEvent, anthropic.MessageDeltaEvent:
			usageSeen = true

		case anthropic.ContentBlockStartEvent:
			if e.ContentBlock.Type != "tool_use" {
				continue
			}
			index := int(e.Index)
			toolBlocks[index] = toolBlock{id: e.ContentBlock.ID, name: e.ContentBlock.Name}
			delta := llmstream.ToolCallDelta{
				Index: index,
				ID:    e.ContentBlock.ID,
				Name:  e.ContentBlock.Name,
			}
			acc.Add(delta)
			if !send(llmstream.ToolCallPartialChunk(delta)) {
				return
			}

		case anthropic.ContentBlockDeltaEvent:
			switch e.Delta.Type {
			case "text_delta":
				if e.Delta.Text == "" {
					continue
				}
				if !send(llmstream.TextChunk(e.Delta.Text)) {
					return
				}

			case "thinking_delta":
				if e.Delta.Thinking == "" {
					continue
				}
				if !send(llmstream.ReasoningChunk(e.Delta.Thinking)) {
					return
				}

			case "signature_delta":
				// Cryptographic verification material, not content.
				p.logger.Debug("skipping thinking signature delta")

			case "input_json_delta":
				index := int(e.Index)
				block, ok := toolBlocks[index]
				if !ok {
					p.logger.Warn("input_json_delta for unknown block", zap.Int("index", index))
					continue
				}
				delta := llmstream.ToolCallDelta{
					Index:     index,
					ID:        block.id,
					Arguments: e.Delta.PartialJSON,
				}
				acc.Add(delta)
				if !send(llmstream.ToolCallPartialChunk(delta)) {
					return
				}
			}

		case anthropic.ContentBlockStopEvent:
			block, ok := toolBlocks[int(e.Index)]
			if !ok {
				continue
			}
			delete(toolBlocks, int(e.Index))
			if _, ok := acc.End(block.id); ok {
				if !send(llmstream.ToolCallEndChunk(block.id)) {
					return
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		send(llmstream.ErrorChunk(&llmstream.StreamError{
			Provider: p.Name().String(),
			Model:    opts.Model,
			Message:  err.Error(),
			Err:      err,
		}))
		return
	}

	// Dangling tool blocks from a truncated stream still close.
	for _, call := range acc.FinishOpen() {
		if !send(llmstream.ToolCallEndChunk(call.ID)) {
			return
		}
	}

	if usageSeen {
		usage := llmstream.Usage{
			InputTokens:      int(message.Usage.InputTokens),
			OutputTokens:     int(message.Usage.OutputTokens),
			CacheWriteTokens: int(message.Usage.CacheCreationInputTokens),
			CacheReadTokens:  int(message.Usage.CacheReadInputTokens),
		}
		usage = llmstream.FinalizeUsage(opts.Info, usage)
		send(llmstream.UsageChunk(usage))
	}
}
