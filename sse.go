package llmstream

import (
	"bufio"
	"io"
	"strings"
)

// DoneSentinel is the terminal data payload on OpenAI-style SSE streams.
const DoneSentinel = "[DONE]"

// SSEEvent is one server-sent event. Name is the value of the event: field,
// empty for unnamed (data-only) events; Data is the joined payload of the
// event's data: lines.
type SSEEvent struct {
	Name string
	Data string
}

// SSEScanner incrementally parses a text/event-stream body. Comment lines
// (leading colon, typically heartbeats) are skipped; unknown field names are
// ignored per the SSE spec. The caller decides what to do with non-JSON data
// payloads and the [DONE] sentinel.
type SSEScanner struct {
	scanner *bufio.Scanner

	name string
	data []string
	done bool
}

// NewSSEScanner wraps a streaming response body. Provider deltas can exceed
// bufio's default line limit, so the buffer allows lines up to 1 MiB.
func NewSSEScanner(r io.Reader) *SSEScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEScanner{scanner: s}
}

// Next returns the next complete event, or nil and io.EOF at end of stream.
// A read failure from the underlying body is returned as-is.
func (s *SSEScanner) Next() (*SSEEvent, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")

		// Blank line dispatches the accumulated event.
		if line == "" {
			if ev := s.flush(); ev != nil {
				return ev, nil
			}
			continue
		}

		// Comment / heartbeat.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.Index(line, ":"); i >= 0 {
			field = line[:i]
			value = strings.TrimPrefix(line[i+1:], " ")
		}

		switch field {
		case "event":
			s.name = value
		case "data":
			s.data = append(s.data, value)
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}

	// Flush a trailing event not terminated by a blank line.
	if ev := s.flush(); ev != nil {
		return ev, nil
	}
	return nil, io.EOF
}

func (s *SSEScanner) flush() *SSEEvent {
	if len(s.data) == 0 && s.name == "" {
		return nil
	}
	ev := &SSEEvent{Name: s.name, Data: strings.Join(s.data, "\n")}
	s.name = ""
	s.data = nil
	if len(ev.Data) == 0 {
		// event: line with no data carries nothing actionable
		return nil
	}
	return ev
}
