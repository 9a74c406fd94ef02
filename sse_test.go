package llmstream

import (
	"io"
	"strings"
	"testing"
)

func readAllEvents(t *testing.T, stream string) []SSEEvent {
	t.Helper()
	s := NewSSEScanner(strings.NewReader(stream))

	var events []SSEEvent
	for {
		ev, err := s.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, *ev)
	}
}

func TestSSEScannerDataOnly(t *testing.T) {
	stream := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
	events := readAllEvents(t, stream)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Data != `{"a":1}` || events[0].Name != "" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[2].Data != DoneSentinel {
		t.Errorf("events[2].Data = %q", events[2].Data)
	}
}

func TestSSEScannerNamedEvents(t *testing.T) {
	stream := "event: response.output_text.delta\ndata: {\"delta\":\"hi\"}\n\n" +
		"event: response.completed\ndata: {}\n\n"
	events := readAllEvents(t, stream)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Name != "response.output_text.delta" {
		t.Errorf("events[0].Name = %q", events[0].Name)
	}
	if events[1].Name != "response.completed" {
		t.Errorf("events[1].Name = %q", events[1].Name)
	}
}

func TestSSEScannerCommentsAndHeartbeats(t *testing.T) {
	stream := ": heartbeat\n\ndata: one\n\n: another comment\ndata: two\n\n"
	events := readAllEvents(t, stream)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Data != "one" || events[1].Data != "two" {
		t.Errorf("events = %+v", events)
	}
}

func TestSSEScannerCRLF(t *testing.T) {
	stream := "data: hello\r\n\r\ndata: world\r\n\r\n"
	events := readAllEvents(t, stream)

	if len(events) != 2 || events[0].Data != "hello" || events[1].Data != "world" {
		t.Errorf("events = %+v", events)
	}
}

func TestSSEScannerMultiLineData(t *testing.T) {
	stream := "data: line1\ndata: line2\n\n"
	events := readAllEvents(t, stream)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "line1\nline2" {
		t.Errorf("Data = %q", events[0].Data)
	}
}

func TestSSEScannerTrailingEventWithoutBlankLine(t *testing.T) {
	stream := "data: first\n\ndata: trailing"
	events := readAllEvents(t, stream)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Data != "trailing" {
		t.Errorf("events[1].Data = %q", events[1].Data)
	}
}

func TestSSEScannerIgnoresUnknownFieldsAndEmptyEvents(t *testing.T) {
	stream := "id: 42\nretry: 100\ndata: payload\n\nevent: nameonly\n\n"
	events := readAllEvents(t, stream)

	// The event: with no data carries nothing actionable and is dropped.
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "payload" {
		t.Errorf("Data = %q", events[0].Data)
	}
}

func TestSSEScannerLargePayload(t *testing.T) {
	big := strings.Repeat("x", 256*1024)
	stream := "data: " + big + "\n\n"
	events := readAllEvents(t, stream)

	if len(events) != 1 || len(events[0].Data) != len(big) {
		t.Fatalf("large payload not preserved")
	}
}

func TestSSEScannerEOFAfterDone(t *testing.T) {
	s := NewSSEScanner(strings.NewReader(""))
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
	// Subsequent calls keep returning EOF.
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("second err = %v, want io.EOF", err)
	}
}
