package gemini

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// streamResponse is one SSE data payload from streamGenerateContent.
type streamResponse struct {
	Candidates    []candidate     `json:"candidates"`
	UsageMetadata json.RawMessage `json:"usageMetadata,omitempty"`
	Error         *streamAPIError `json:"error,omitempty"`
}

type candidate struct {
	Content           *content           `json:"content,omitempty"`
	FinishReason      string             `json:"finishReason,omitempty"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks,omitempty"`
}

type groundingChunk struct {
	Web *webSource `json:"web,omitempty"`
}

type webSource struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

type streamAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// streamEvents consumes the SSE body and emits normalized chunks.
//
// Gemini delivers tool calls atomically: one functionCall part carries the
// complete name and arguments, so the fragment accumulator is bypassed and a
// complete tool_call chunk is emitted directly, with a minted id.
func (p *Provider) streamEvents(ctx context.Context, body io.Reader, opts *llmstream.CreateOptions, out chan<- llmstream.StreamChunk) {
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

		var resp streamResponse
		if err := json.Unmarshal([]byte(ev.Data), &resp); err != nil {
			p.logger.Debug("skipping unparseable stream payload", zap.Error(err))
			continue
		}

		if resp.Error != nil {
			send(llmstream.ErrorChunk(&llmstream.StreamError{
				Provider: p.Name().String(),
				Model:    opts.Model,
				Message:  resp.Error.Message,
				Err:      llmstream.ErrProviderUnavailable,
			}))
			return
		}

		if len(resp.UsageMetadata) > 0 && string(resp.UsageMetadata) != "null" {
			usageRaw = resp.UsageMetadata
		}

		if len(resp.Candidates) == 0 {
			continue
		}
		cand := resp.Candidates[0]

		if cand.Content != nil {
			for _, pt := range cand.Content.Parts {
				switch {
				case pt.FunctionCall != nil:
					args := string(pt.FunctionCall.Args)
					if args == "" {
						args = "{}"
					}
					call := llmstream.ToolCall{
						ID:        uuid.NewString(),
						Name:      pt.FunctionCall.Name,
						Arguments: args,
					}
					if !send(llmstream.CompleteToolCallChunk(call)) {
						return
					}

				case pt.Thought:
					if pt.Text == "" {
						continue
					}
					if !send(llmstream.ReasoningChunk(pt.Text)) {
						return
					}

				case pt.Text != "":
					if !send(llmstream.TextChunk(pt.Text)) {
						return
					}
				}
			}
		}

		if cand.GroundingMetadata != nil {
			if sources := convertGroundingChunks(cand.GroundingMetadata.GroundingChunks); len(sources) > 0 {
				if !send(llmstream.GroundingChunk(sources)) {
					return
				}
			}
		}
	}

	if usageRaw != nil {
		usage := llmstream.NormalizeUsage(usageRaw, llmstream.UsageFamilyGemini)
		usage = llmstream.FinalizeUsage(opts.Info, usage)
		send(llmstream.UsageChunk(usage))
	}
}

// convertGroundingChunks maps web grounding chunks to grounding sources.
func convertGroundingChunks(chunks []groundingChunk) []llmstream.GroundingSource {
	var sources []llmstream.GroundingSource
	for _, c := range chunks {
		if c.Web == nil || c.Web.URI == "" {
			continue
		}
		sources = append(sources, llmstream.GroundingSource{
			URL:   c.Web.URI,
			Title: c.Web.Title,
		})
	}
	return sources
}
