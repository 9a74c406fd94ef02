package responses

import (
	"context"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// streamEvent is one Responses API stream payload. The type field names the
// event; the other fields are populated per event type.
type streamEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	Item     *outputItem     `json:"item,omitempty"`
	Response *responseObject `json:"response,omitempty"`
	Message  string          `json:"message,omitempty"` // top-level "error" events
	Code     string          `json:"code,omitempty"`
}

// outputItem is a typed output element delivered by output_item lifecycle
// events. For function calls the call id (used to correlate tool results) is
// distinct from the item id (used to attribute argument deltas).
type outputItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "message", "reasoning", "function_call"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responseObject struct {
	Usage json.RawMessage `json:"usage,omitempty"`
	Error *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// turnState is the per-turn reassembly state for one Responses stream.
//
// Argument deltas arrive with an item_id, but the canonical tool-call
// identity is the call_id, so the state keeps the mapping plus the most
// recently opened call as a fallback for backends that omit item_id.
type turnState struct {
	acc          *llmstream.ToolCallAccumulator
	callIDByItem map[string]string
	lastCallID   string
	usageRaw     json.RawMessage
	logger       *zap.Logger
}

func newTurnState(logger *zap.Logger) *turnState {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &turnState{
		acc:          llmstream.NewToolCallAccumulator(logger),
		callIDByItem: make(map[string]string),
		logger:       logger,
	}
}

// handleEvent maps one stream event to zero or more canonical chunks.
// The second return is true when the event terminates the turn.
func (s *turnState) handleEvent(provider, model string, ev *streamEvent) ([]llmstream.StreamChunk, bool) {
	switch ev.Type {
	case "response.output_text.delta":
		if ev.Delta == "" {
			return nil, false
		}
		return []llmstream.StreamChunk{llmstream.TextChunk(ev.Delta)}, false

	case "response.reasoning_text.delta", "response.reasoning_summary_text.delta":
		if ev.Delta == "" {
			return nil, false
		}
		return []llmstream.StreamChunk{llmstream.ReasoningChunk(ev.Delta)}, false

	case "response.output_item.added":
		if ev.Item == nil || ev.Item.Type != "function_call" {
			return nil, false
		}
		// Registration fragment: id and name, no arguments yet.
		s.callIDByItem[ev.Item.ID] = ev.Item.CallID
		s.lastCallID = ev.Item.CallID
		delta := llmstream.ToolCallDelta{ID: ev.Item.CallID, Name: ev.Item.Name}
		s.acc.Add(delta)
		return []llmstream.StreamChunk{llmstream.ToolCallPartialChunk(delta)}, false

	case "response.function_call_arguments.delta":
		if ev.Delta == "" {
			return nil, false
		}
		callID := s.callIDByItem[ev.ItemID]
		if callID == "" {
			callID = s.lastCallID
		}
		if callID == "" {
			s.logger.Warn("dropping unattributable tool argument delta",
				zap.String("item_id", ev.ItemID),
			)
			return nil, false
		}
		delta := llmstream.ToolCallDelta{ID: callID, Arguments: ev.Delta}
		s.acc.Add(delta)
		return []llmstream.StreamChunk{llmstream.ToolCallPartialChunk(delta)}, false

	case "response.output_item.done":
		if ev.Item == nil || ev.Item.Type != "function_call" {
			return nil, false
		}
		call, ok := s.acc.End(ev.Item.CallID)
		if !ok {
			// Done for a call that was never registered or already closed.
			s.logger.Debug("ignoring duplicate tool call completion",
				zap.String("call_id", ev.Item.CallID),
			)
			return nil, false
		}
		// The done event carries the full argument string; prefer it over
		// the accumulated deltas when present.
		if ev.Item.Arguments != "" {
			call.Arguments = ev.Item.Arguments
		}
		if ev.Item.Name != "" {
			call.Name = ev.Item.Name
		}
		return []llmstream.StreamChunk{llmstream.CompleteToolCallChunk(call)}, false

	case "response.completed":
		if ev.Response != nil && len(ev.Response.Usage) > 0 && string(ev.Response.Usage) != "null" {
			s.usageRaw = ev.Response.Usage
		}
		return nil, true

	case "response.failed":
		message := "response failed"
		if ev.Response != nil && ev.Response.Error != nil {
			message = ev.Response.Error.Message
		}
		return []llmstream.StreamChunk{llmstream.ErrorChunk(&llmstream.StreamError{
			Provider: provider,
			Model:    model,
			Message:  message,
			Err:      llmstream.ErrProviderUnavailable,
		})}, true

	case "error":
		return []llmstream.StreamChunk{llmstream.ErrorChunk(&llmstream.StreamError{
			Provider: provider,
			Model:    model,
			Message:  ev.Message,
			Err:      llmstream.ErrProviderUnavailable,
		})}, true

	default:
		// Lifecycle noise (response.created, content_part events, item added
		// for non-function items) carries nothing the canonical stream needs.
		return nil, false
	}
}

// streamEvents consumes the SSE body and emits normalized chunks. Event
// payloads self-describe via their type field, so the same loop handles
// named SSE events and bare data lines.
func (p *Provider) streamEvents(ctx context.Context, body io.Reader, opts *llmstream.CreateOptions, out chan<- llmstream.StreamChunk) {
	state := newTurnState(p.logger)
	provider := p.Name().String()

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
				Provider: provider,
				Model:    opts.Model,
				Message:  err.Error(),
				Err:      err,
			}))
			return
		}
		if ev.Data == llmstream.DoneSentinel {
			break
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			p.logger.Debug("skipping unparseable stream payload", zap.Error(err))
			continue
		}
		if event.Type == "" {
			event.Type = ev.Name
		}

		chunks, done := state.handleEvent(provider, opts.Model, &event)
		for _, c := range chunks {
			if !send(c) {
				return
			}
		}
		if done {
			break
		}
	}

	// A stream that ends without done events for its calls still closes them.
	for _, call := range state.acc.FinishOpen() {
		if !send(llmstream.CompleteToolCallChunk(call)) {
			return
		}
	}

	if state.usageRaw != nil {
		usage := llmstream.NormalizeUsage(state.usageRaw, llmstream.UsageFamilyOpenAI)
		usage = llmstream.FinalizeUsage(opts.Info, usage)
		send(llmstream.UsageChunk(usage))
	}
}
