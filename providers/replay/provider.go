// Package replay provides a deterministic scripted provider for development
// and testing. It emits a pre-recorded chunk sequence through the canonical
// streaming contract, so consumers can exercise ordering, tool reassembly,
// and usage handling without network access or API keys.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/ebaldwin/chorus-llm-go"
)

// Provider implements the llmstream.Handler interface with a fixed script.
type Provider struct {
	script []llmstream.StreamChunk
	delay  time.Duration
}

// NewProvider creates a replay provider that emits the given chunks in order.
func NewProvider(script []llmstream.StreamChunk) *Provider {
	return &Provider{script: script}
}

// WithDelay inserts a pause between chunks to simulate network pacing.
func (p *Provider) WithDelay(delay time.Duration) *Provider {
	p.delay = delay
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() llmstream.ProviderID {
	return llmstream.ProviderReplay
}

// CreateMessage streams the script. Messages and options are accepted for
// interface compatibility; only opts validation applies.
func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (<-chan llmstream.StreamChunk, error) {
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("missing model: %w", llmstream.ErrInvalidRequest)
	}

	out := make(chan llmstream.StreamChunk, 16) // Buffered to prevent blocking

	go func() {
		defer close(out)
		for _, chunk := range p.script {
			if p.delay > 0 {
				select {
				case <-time.After(p.delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// TextScript builds a simple script: the words streamed as text chunks
// followed by a usage chunk. Useful as a development default.
func TextScript(words []string, usage llmstream.Usage) []llmstream.StreamChunk {
	script := make([]llmstream.StreamChunk, 0, len(words)+1)
	for _, w := range words {
		script = append(script, llmstream.TextChunk(w))
	}
	script = append(script, llmstream.UsageChunk(usage))
	return script
}
