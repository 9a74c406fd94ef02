package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// Provider implements the llmstream.Handler interface for OpenRouter's
// unified API. OpenRouter proxies requests to multiple LLM providers
// (Anthropic, OpenAI, Google, etc.) using an OpenAI-compatible format, with
// its own extensions: reasoning_details blocks, web-search annotations on
// :online models, and provider-computed cost in the usage payload.
//
// Common Issues:
// - 404 errors: Verify model name at https://openrouter.ai/models
// - Tool calling: Not all models support function calling - check OpenRouter docs
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	tokens     llmstream.TokenSource
}

// NewProvider creates a new OpenRouter provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, llmstream.ErrInvalidAPIKey
	}

	return &Provider{
		baseURL:    "https://openrouter.ai/api/v1",
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     zap.NewNop(),
		tokens:     llmstream.StaticToken(apiKey),
	}, nil
}

// WithBaseURL overrides the default API endpoint.
func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = baseURL
	return p
}

// WithHTTPClient replaces the default HTTP client.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	p.httpClient = client
	return p
}

// WithLogger attaches a structured logger.
func (p *Provider) WithLogger(logger *zap.Logger) *Provider {
	p.logger = logger
	return p
}

// WithTokenSource replaces the static API key with a refreshable credential.
func (p *Provider) WithTokenSource(tokens llmstream.TokenSource) *Provider {
	p.tokens = tokens
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() llmstream.ProviderID {
	return llmstream.ProviderOpenRouter
}

// SupportsModel returns true if this provider supports the given model.
// OpenRouter supports models in "provider/model" format (e.g.,
// "anthropic/claude-sonnet-4-5") or special models like "openrouter/auto"
func (p *Provider) SupportsModel(model string) bool {
	return strings.Contains(model, "/")
}

// CreateMessage opens one streaming turn against the OpenRouter API.
func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (<-chan llmstream.StreamChunk, error) {
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("missing model: %w", llmstream.ErrInvalidRequest)
	}

	if !p.SupportsModel(opts.Model) {
		return nil, &llmstream.ModelError{
			Model:    opts.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by OpenRouter (must be in 'provider/model' format)",
			Err:      llmstream.ErrInvalidModel,
		}
	}

	body, err := buildChatCompletionRequest(systemPrompt, messages, opts)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	p.logger.Debug("opening openrouter stream",
		zap.String("model", opts.Model),
		zap.Int("message_count", len(messages)),
	)

	resp, err := llmstream.DoWithAuthRefresh(ctx, p.httpClient, p.logger, p.tokens, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		return req, nil
	})
	if err != nil {
		return nil, &llmstream.ProviderError{
			Code:      llmstream.ErrorCodeProviderUnavailable,
			Provider:  p.Name().String(),
			Model:     opts.Model,
			Message:   err.Error(),
			Retryable: true,
			Err:       llmstream.ErrProviderUnavailable,
		}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.handleErrorResponse(resp, opts.Model)
	}

	out := make(chan llmstream.StreamChunk, 16) // Buffered to prevent blocking

	go func() {
		defer close(out)
		defer resp.Body.Close()
		p.streamEvents(ctx, resp.Body, opts, out)
	}()

	return out, nil
}

// handleErrorResponse parses error responses from OpenRouter.
func (p *Provider) handleErrorResponse(resp *http.Response, model string) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Code     int                    `json:"code"`
			Message  string                 `json:"message"`
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeAuth,
			Provider:   p.Name().String(),
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  false,
			Err:        llmstream.ErrInvalidAPIKey,
		}
	case http.StatusTooManyRequests:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeRateLimited,
			Provider:   p.Name().String(),
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  true,
			Err:        llmstream.ErrRateLimited,
		}
	case http.StatusPaymentRequired:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeProviderUnavailable,
			Provider:   p.Name().String(),
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    "insufficient credits: " + message,
			Retryable:  false,
			Err:        llmstream.ErrProviderUnavailable,
		}
	case http.StatusRequestTimeout:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeTimeout,
			Provider:   p.Name().String(),
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  true,
			Err:        llmstream.ErrTimeout,
		}
	case http.StatusNotFound:
		if message == "" {
			message = "model not found on OpenRouter - verify model name at https://openrouter.ai/models"
		}
		return &llmstream.ModelError{
			Model:    model,
			Provider: p.Name().String(),
			Reason:   message,
			Err:      llmstream.ErrInvalidModel,
		}
	default:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeProviderUnavailable,
			Provider:   p.Name().String(),
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  resp.StatusCode >= 500,
			Err:        llmstream.ErrProviderUnavailable,
		}
	}
}
