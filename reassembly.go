package llmstream

import (
	"strings"

	"go.uber.org/zap"
)

// partialToolCall accumulates one streamed tool call.
type partialToolCall struct {
	index  int
	id     string
	name   string
	args   strings.Builder
	closed bool
}

// ToolCallAccumulator reassembles fragmented tool-call deltas into complete,
// invokable tool calls. Fragments are keyed by positional index until an id
// arrives, then by id; arguments are concatenated byte-for-byte in arrival
// order. The accumulator is per-turn state and must never be shared across
// concurrent turns.
//
// Late fragments - anything arriving for a call after it was finalized - are
// dropped and logged, never re-opened.
type ToolCallAccumulator struct {
	order   []*partialToolCall
	byIndex map[int]*partialToolCall
	byID    map[string]*partialToolCall
	logger  *zap.Logger
}

// NewToolCallAccumulator creates an empty accumulator. A nil logger is
// replaced with a no-op logger.
func NewToolCallAccumulator(logger *zap.Logger) *ToolCallAccumulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolCallAccumulator{
		byIndex: make(map[int]*partialToolCall),
		byID:    make(map[string]*partialToolCall),
		logger:  logger,
	}
}

// Add applies one fragment. The id often arrives after the index on the first
// fragment, so a new id adopts an index entry that is still waiting for one;
// an index entry that is closed or already bound to a different id belongs to
// another call, and the new id opens a fresh entry. A name is recorded the
// first time it is seen and never overwritten by a non-empty value.
func (a *ToolCallAccumulator) Add(delta ToolCallDelta) {
	var call *partialToolCall

	if delta.ID != "" {
		call = a.byID[delta.ID]
		if call == nil {
			if c := a.byIndex[delta.Index]; c != nil && !c.closed && c.id == "" {
				call = c
			}
		}
	} else {
		call = a.byIndex[delta.Index]
	}

	if call == nil {
		call = &partialToolCall{index: delta.Index}
		a.order = append(a.order, call)
		a.byIndex[delta.Index] = call
	}

	if call.closed {
		a.logger.Debug("dropping late tool call fragment",
			zap.Int("index", delta.Index),
			zap.String("id", delta.ID),
		)
		return
	}

	if delta.ID != "" && call.id == "" {
		call.id = delta.ID
		a.byID[delta.ID] = call
	}
	if delta.Name != "" && call.name == "" {
		call.name = delta.Name
	}
	if delta.Arguments != "" {
		call.args.WriteString(delta.Arguments)
	}
}

// End finalizes the call with the given id. Returns false if the id is
// unknown or the call was already finalized. An empty or syntactically
// invalid arguments string is still surfaced; argument validation belongs to
// the tool-invocation layer.
func (a *ToolCallAccumulator) End(id string) (ToolCall, bool) {
	call, ok := a.byID[id]
	if !ok || call.closed {
		return ToolCall{}, false
	}
	call.closed = true
	return ToolCall{ID: call.id, Name: call.name, Arguments: call.args.String()}, true
}

// FinishOpen finalizes every still-open call with a known id, in arrival
// order, and closes them so late fragments cannot reopen them. Calls that
// never received an id cannot be surfaced to the tool-invocation layer; they
// are omitted and logged.
func (a *ToolCallAccumulator) FinishOpen() []ToolCall {
	var done []ToolCall
	for _, call := range a.order {
		if call.closed {
			continue
		}
		if call.id == "" {
			a.logger.Warn("omitting tool call with no id",
				zap.Int("index", call.index),
				zap.String("name", call.name),
			)
			call.closed = true
			continue
		}
		call.closed = true
		done = append(done, ToolCall{ID: call.id, Name: call.name, Arguments: call.args.String()})
	}
	return done
}

// OpenCount returns the number of calls that have not been finalized yet.
func (a *ToolCallAccumulator) OpenCount() int {
	n := 0
	for _, call := range a.order {
		if !call.closed {
			n++
		}
	}
	return n
}
