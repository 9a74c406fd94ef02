package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// Provider implements the llmstream.Handler interface for Anthropic (Claude)
// models, built on the official SDK. Reasoning arrives as dedicated thinking
// deltas, so no inline tag extraction is needed on this path.
type Provider struct {
	client *anthropic.Client
	logger *zap.Logger
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, llmstream.ErrInvalidAPIKey
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
		logger: zap.NewNop(),
	}, nil
}

// WithLogger attaches a structured logger.
func (p *Provider) WithLogger(logger *zap.Logger) *Provider {
	p.logger = logger
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() llmstream.ProviderID {
	return llmstream.ProviderAnthropic
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// CreateMessage opens one streaming turn against the Messages API.
func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (<-chan llmstream.StreamChunk, error) {
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("missing model: %w", llmstream.ErrInvalidRequest)
	}

	if !p.SupportsModel(opts.Model) {
		return nil, &llmstream.ModelError{
			Model:    opts.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Anthropic (must start with 'claude-')",
			Err:      llmstream.ErrInvalidModel,
		}
	}

	apiParams, err := buildMessageParams(systemPrompt, messages, opts)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("opening anthropic stream",
		zap.String("model", opts.Model),
		zap.Int("message_count", len(messages)),
	)

	out := make(chan llmstream.StreamChunk, 16) // Buffered to prevent blocking

	go func() {
		defer close(out)
		p.streamEvents(ctx, apiParams, opts, out)
	}()

	return out, nil
}
