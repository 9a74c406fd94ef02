package responses

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

// Provider implements the llmstream.Handler interface for the item-based
// Responses API. Unlike Chat Completions, output arrives as typed items
// (messages, reasoning, function calls) with lifecycle events, and tool-call
// argument deltas are attributed by item id rather than positional index.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	tokens     llmstream.TokenSource
}

// NewProvider creates a new Responses API provider with the given API key.
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

// WithBaseURL points the provider at a compatible backend.
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
	return llmstream.ProviderResponses
}

// responsesRequest is the Responses API request body.
type responsesRequest struct {
	Model           string              `json:"model"`
	Instructions    string              `json:"instructions,omitempty"`
	Input           []inputItem         `json:"input"`
	MaxOutputTokens *int                `json:"max_output_tokens,omitempty"`
	Temperature     *float64            `json:"temperature,omitempty"`
	Reasoning       *reasoningConfig    `json:"reasoning,omitempty"`
	Stream          bool                `json:"stream"`
	Tools           []responsesTool     `json:"tools,omitempty"`
	ToolChoice      interface{}         `json:"tool_choice,omitempty"`
}

// inputItem is one element of the input list. The type field selects which
// of the remaining fields are meaningful.
type inputItem struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`      // "message"
	Content   string `json:"content,omitempty"`   // "message"
	CallID    string `json:"call_id,omitempty"`   // "function_call", "function_call_output"
	Name      string `json:"name,omitempty"`      // "function_call"
	Arguments string `json:"arguments,omitempty"` // "function_call"
	Output    string `json:"output,omitempty"`    // "function_call_output"
}

type reasoningConfig struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary,omitempty"`
}

// responsesTool is the flattened tool shape the Responses API uses; there is
// no nested "function" object.
type responsesTool struct {
	Type        string                 `json:"type"` // "function"
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
	Strict      bool                   `json:"strict"`
}

// CreateMessage opens one streaming turn against the Responses API.
func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (<-chan llmstream.StreamChunk, error) {
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("missing model: %w", llmstream.ErrInvalidRequest)
	}

	body, err := buildResponsesRequest(systemPrompt, messages, opts)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	p.logger.Debug("opening responses stream",
		zap.String("model", opts.Model),
		zap.Int("input_count", len(body.Input)),
	)

	resp, err := llmstream.DoWithAuthRefresh(ctx, p.httpClient, p.logger, p.tokens, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/responses", bytes.NewReader(payload))
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

// buildResponsesRequest converts normalized messages into the item-based
// input list. The system prompt rides in the instructions field; assistant
// tool calls and tool results become dedicated item types.
func buildResponsesRequest(systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (*responsesRequest, error) {
	input := make([]inputItem, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case "user", "assistant":
			if msg.Content != "" {
				input = append(input, inputItem{Type: "message", Role: msg.Role, Content: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input = append(input, inputItem{
					Type:      "function_call",
					CallID:    call.ID,
					Name:      call.Name,
					Arguments: call.Arguments,
				})
			}
		case "tool":
			if msg.ToolCallID == "" {
				return nil, fmt.Errorf("message %d: tool message missing tool_call_id: %w", i, llmstream.ErrInvalidRequest)
			}
			input = append(input, inputItem{
				Type:   "function_call_output",
				CallID: msg.ToolCallID,
				Output: msg.Content,
			})
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s': %w", i, msg.Role, llmstream.ErrInvalidRequest)
		}
	}

	req := &responsesRequest{
		Model:        opts.Model,
		Instructions: systemPrompt,
		Input:        input,
		Stream:       true,
		Temperature:  opts.ResolveTemperature(),
	}

	if maxTokens := opts.ResolveMaxTokens(0); maxTokens > 0 {
		req.MaxOutputTokens = &maxTokens
	}

	if effort := llmstream.ResolveEffortReasoning(opts.Info, opts.Reasoning); effort != nil {
		req.Reasoning = &reasoningConfig{Effort: effort.Effort, Summary: "auto"}
	}

	if len(opts.Tools) > 0 {
		req.Tools = convertTools(opts.Tools)
		req.ToolChoice = convertToolChoice(opts.ToolChoice)
	}

	return req, nil
}

// convertTools flattens tool definitions and enables strict schema mode.
// Strict mode requires every object schema to close additionalProperties and
// list all properties as required, so schemas are patched on the way in.
func convertTools(tools []llmstream.Tool) []responsesTool {
	out := make([]responsesTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, responsesTool{
			Type:        "function",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  llmstream.StrictFunctionSchema(tool.Function.Parameters),
			Strict:      true,
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
		return map[string]interface{}{"type": "function", "name": *choice.ToolName}
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
