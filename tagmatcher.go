package llmstream

import "strings"

// TagChunk is one classified span of text produced by a TagMatcher.
// Concatenating the Data of all chunks yielded across Update and Final calls
// reconstructs the original input exactly; Matched indicates whether the span
// was inside the tag.
type TagChunk struct {
	Matched bool
	Data    string
}

// TagMatcher splits a stream of text deltas into tagged and untagged spans,
// handling markers that straddle delta boundaries. Models served through
// OpenAI-compatible backends often interleave reasoning inside inline
// delimiter tags (e.g. <think>...</think>) instead of a dedicated field;
// adapters run their text deltas through a matcher to separate the two.
//
// A matcher is per-turn state: construct one per streaming call and never
// share it across turns.
type TagMatcher struct {
	openTag  string
	closeTag string
	classify func(TagChunk) StreamChunk

	inside bool
	buffer string
}

// NewTagMatcher creates a matcher for <tagName>...</tagName>. classify maps
// each emitted span to a canonical chunk (typically reasoning for matched
// spans and text for the rest).
func NewTagMatcher(tagName string, classify func(TagChunk) StreamChunk) *TagMatcher {
	return &TagMatcher{
		openTag:  "<" + tagName + ">",
		closeTag: "</" + tagName + ">",
		classify: classify,
	}
}

// Update consumes one text delta and returns zero or more classified chunks.
// Content that could still be the start of a marker is retained internally
// until the next Update or Final call.
func (m *TagMatcher) Update(delta string) []StreamChunk {
	m.buffer += delta

	var out []StreamChunk
	for {
		marker := m.openTag
		if m.inside {
			marker = m.closeTag
		}

		idx := strings.Index(m.buffer, marker)
		if idx >= 0 {
			if idx > 0 {
				out = append(out, m.classify(TagChunk{Matched: m.inside, Data: m.buffer[:idx]}))
			}
			m.buffer = m.buffer[idx+len(marker):]
			m.inside = !m.inside
			continue
		}

		// No full marker in the buffer. Emit everything except a tail that
		// could still grow into the marker on the next delta.
		keep := markerOverlap(m.buffer, marker)
		if emit := m.buffer[:len(m.buffer)-keep]; emit != "" {
			out = append(out, m.classify(TagChunk{Matched: m.inside, Data: emit}))
			m.buffer = m.buffer[len(m.buffer)-keep:]
		}
		return out
	}
}

// Final flushes any retained content at stream end. An unterminated tag is
// treated as matched content, not discarded.
func (m *TagMatcher) Final() []StreamChunk {
	if m.buffer == "" {
		return nil
	}
	chunk := m.classify(TagChunk{Matched: m.inside, Data: m.buffer})
	m.buffer = ""
	return []StreamChunk{chunk}
}

// markerOverlap returns the length of the longest proper suffix of s that is
// a prefix of marker. That suffix must be withheld: the next delta could
// complete the marker.
func markerOverlap(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(s, marker[:k]) {
			return k
		}
	}
	return 0
}
