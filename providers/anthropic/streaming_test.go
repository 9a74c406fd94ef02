package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

func newFixtureProvider(t *testing.T, body string) (*Provider, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, body)
	}))

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
	)
	return &Provider{client: &client, logger: zap.NewNop()}, server.Close
}

func collect(t *testing.T, ch <-chan llmstream.StreamChunk) []llmstream.StreamChunk {
	t.Helper()
	var chunks []llmstream.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestStreamTextAndUsage(t *testing.T) {
	body := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[],"stop_reason":null,"usage":{"input_tokens":10,"output_tokens":1}}}` + "\n\n" +
		"event: content_block_start\n" +
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}` + "\n\n" +
		"event: content_block_stop\n" +
		`data: {"type":"content_block_stop","index":0}` + "\n\n" +
		"event: message_delta\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":4}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	provider, cleanup := newFixtureProvider(t, body)
	defer cleanup()

	ch, err := provider.CreateMessage(context.Background(), "", []llmstream.Message{{Role: "user", Content: "hey"}}, &llmstream.CreateOptions{Model: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	chunks := collect(t, ch)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks %+v, want 2", len(chunks), chunks)
	}
	if chunks[0].Kind != llmstream.ChunkKindText || chunks[0].Text != "hi" {
		t.Errorf("chunks[0] = %+v", chunks[0])
	}
	if chunks[1].Kind != llmstream.ChunkKindUsage {
		t.Fatalf("chunks[1] = %+v", chunks[1])
	}
	if u := chunks[1].Usage; u.InputTokens != 10 || u.OutputTokens != 4 {
		t.Errorf("usage = %+v", u)
	}
}

func TestStreamNoUsageEventMeansNoUsageChunk(t *testing.T) {
	// A stream that ends cleanly without ever reporting usage must not
	// fabricate a zero-valued usage chunk.
	provider, cleanup := newFixtureProvider(t, "")
	defer cleanup()

	ch, err := provider.CreateMessage(context.Background(), "", []llmstream.Message{{Role: "user", Content: "hey"}}, &llmstream.CreateOptions{Model: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if chunks := collect(t, ch); len(chunks) != 0 {
		t.Errorf("got %d chunks %+v, want none", len(chunks), chunks)
	}
}
