package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebaldwin/chorus-llm-go"
)

// Provider implements the llmstream.Handler interface for OpenAI-compatible
// Chat Completions backends (OpenAI itself, plus local/self-hosted servers
// speaking the same wire format).
//
// Compatible backends that lack a dedicated reasoning field often embed
// chain-of-thought inline in <think> tags; the streaming path routes text
// deltas through a tag matcher so both encodings normalize the same way.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	tokens     llmstream.TokenSource
}

// NewProvider creates a new Chat Completions provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, llmstream.ErrInvalidAPIKey
	}

	return &Provider{
		baseURL:    "https://api.openai.com/v1",
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     zap.NewNop(),
		tokens:     llmstream.StaticToken(apiKey),
	}, nil
}

// WithBaseURL points the provider at an OpenAI-compatible backend.
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
	return llmstream.ProviderOpenAI
}

// chatCompletionRequest is the Chat Completions request body.
type chatCompletionRequest struct {
	Model           string         `json:"model"`
	Messages        []chatMessage  `json:"messages"`
	MaxTokens       *int           `json:"max_tokens,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
	ReasoningEffort string         `json:"reasoning_effort,omitempty"`
	Stream          bool           `json:"stream"`
	StreamOptions   *streamOptions `json:"stream_options,omitempty"`
	Tools           []chatTool     `json:"tools,omitempty"`
	ToolChoice      interface{}    `json:"tool_choice,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string         `json:"role"` // "system", "user", "assistant", "tool"
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

type chatTool struct {
	Type     string                 `json:"type"` // "function"
	Function chatFunctionDefinition `json:"function"`
}

type chatFunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// CreateMessage opens one streaming turn against the Chat Completions API.
func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (<-chan llmstream.StreamChunk, error) {
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("missing model: %w", llmstream.ErrInvalidRequest)
	}

	body, err := buildChatCompletionRequest(systemPrompt, messages, opts)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	p.logger.Debug("opening chat completions stream",
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

// buildChatCompletionRequest constructs the request body from normalized
// messages plus resolved reasoning and generation parameters.
func buildChatCompletionRequest(systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (*chatCompletionRequest, error) {
	chatMessages := make([]chatMessage, 0, len(messages)+1)

	if systemPrompt != "" {
		chatMessages = append(chatMessages, chatMessage{Role: "system", Content: systemPrompt})
	}

	for i, msg := range messages {
		switch msg.Role {
		case "user", "assistant":
			m := chatMessage{Role: msg.Role, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, chatToolCall{
					ID:   call.ID,
					Type: "function",
					Function: chatFunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			chatMessages = append(chatMessages, m)
		case "tool":
			if msg.ToolCallID == "" {
				return nil, fmt.Errorf("message %d: tool message missing tool_call_id: %w", i, llmstream.ErrInvalidRequest)
			}
			chatMessages = append(chatMessages, chatMessage{
				Role:       "tool",
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s': %w", i, msg.Role, llmstream.ErrInvalidRequest)
		}
	}

	req := &chatCompletionRequest{
		Model:         opts.Model,
		Messages:      chatMessages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
		Temperature:   opts.ResolveTemperature(),
	}

	if maxTokens := opts.ResolveMaxTokens(0); maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	// Chat Completions has no budget knob at the wire level; effort is used
	// even for models that also support budgets.
	if effort := llmstream.ResolveEffortReasoning(opts.Info, opts.Reasoning); effort != nil {
		req.ReasoningEffort = effort.Effort
	}

	if len(opts.Tools) > 0 {
		req.Tools = convertTools(opts.Tools)
		req.ToolChoice = convertToolChoice(opts.ToolChoice)
	}

	return req, nil
}

// convertTools passes tool definitions through to the native shape.
// Chat Completions uses the universal format, so this is a straight copy.
func convertTools(tools []llmstream.Tool) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}
	return out
}

// convertToolChoice converts the library tool choice to wire format.
func convertToolChoice(choice *llmstream.ToolChoice) interface{} {
	if choice == nil {
		return nil
	}
	switch choice.Mode {
	case llmstream.ToolChoiceModeAuto:
		return "auto"
	case llmstream.ToolChoiceModeRequired:
		return "required"
	case llmstream.ToolChoiceModeNone:
		return "none"
	case llmstream.ToolChoiceModeSpecific:
		if choice.ToolName == nil {
			return "auto"
		}
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": *choice.ToolName},
		}
	default:
		return "auto"
	}
}

// handleErrorResponse parses non-200 responses into typed provider errors.
func (p *Provider) handleErrorResponse(resp *http.Response, model string) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
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
	case http.StatusBadRequest, http.StatusNotFound:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeInvalidRequest,
			Provider:   p.Name().String(),
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  false,
			Err:        llmstream.ErrInvalidRequest,
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
