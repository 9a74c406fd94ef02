package gemini

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

// Provider implements the llmstream.Handler interface for Google's Gemini
// API over REST. Gemini differs from the other adapters in three ways:
// thoughts arrive as parts flagged thought:true, tool calls arrive atomically
// in a single part (no fragment reassembly), and tool calls carry no id, so
// synthetic ids are minted for the canonical stream.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	tokens     llmstream.TokenSource
}

// NewProvider creates a new Gemini provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, llmstream.ErrInvalidAPIKey
	}

	return &Provider{
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{Timeout: 10 * time.Minute},
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
	return llmstream.ProviderGemini
}

// generateContentRequest is the streamGenerateContent request body.
type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool      `json:"tools,omitempty"`
	ToolConfig        *toolConfig       `json:"toolConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"` // "user" or "model"
	Parts []part `json:"parts"`
}

type part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type functionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type functionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type generationConfig struct {
	MaxOutputTokens *int                      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64                  `json:"temperature,omitempty"`
	ThinkingConfig  *llmstream.GeminiThinking `json:"thinkingConfig,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type toolConfig struct {
	FunctionCallingConfig functionCallingConfig `json:"functionCallingConfig"`
}

type functionCallingConfig struct {
	Mode                 string   `json:"mode"` // "AUTO", "ANY", "NONE"
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// CreateMessage opens one streaming turn against streamGenerateContent.
func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (<-chan llmstream.StreamChunk, error) {
	if opts == nil || opts.Model == "" {
		return nil, fmt.Errorf("missing model: %w", llmstream.ErrInvalidRequest)
	}

	body, err := buildGenerateContentRequest(systemPrompt, messages, opts)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/models/" + opts.Model + ":streamGenerateContent?alt=sse"

	p.logger.Debug("opening gemini stream",
		zap.String("model", opts.Model),
		zap.Int("message_count", len(messages)),
	)

	resp, err := llmstream.DoWithAuthRefresh(ctx, p.httpClient, p.logger, p.tokens, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-goog-api-key", token)
		req.Header.Set("Content-Type", "application/json")
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

// buildGenerateContentRequest converts normalized messages into Gemini
// contents. Gemini has no tool-call ids; tool-result messages carry the
// function name in ToolCallID so the functionResponse can name its function.
func buildGenerateContentRequest(systemPrompt string, messages []llmstream.Message, opts *llmstream.CreateOptions) (*generateContentRequest, error) {
	contents := make([]content, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case "user":
			contents = append(contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})

		case "assistant":
			var parts []part
			if msg.Content != "" {
				parts = append(parts, part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args := call.Arguments
				if args == "" {
					args = "{}"
				}
				parts = append(parts, part{FunctionCall: &functionCall{
					Name: call.Name,
					Args: json.RawMessage(args),
				}})
			}
			if len(parts) == 0 {
				return nil, fmt.Errorf("message %d: assistant message has no content: %w", i, llmstream.ErrInvalidRequest)
			}
			contents = append(contents, content{Role: "model", Parts: parts})

		case "tool":
			if msg.ToolCallID == "" {
				return nil, fmt.Errorf("message %d: tool message missing tool_call_id: %w", i, llmstream.ErrInvalidRequest)
			}
			var response map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]interface{}{"result": msg.Content}
			}
			contents = append(contents, content{Role: "user", Parts: []part{{FunctionResponse: &functionResponse{
				Name:     msg.ToolCallID,
				Response: response,
			}}}})

		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s': %w", i, msg.Role, llmstream.ErrInvalidRequest)
		}
	}

	req := &generateContentRequest{Contents: contents}

	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}

	config := &generationConfig{Temperature: opts.ResolveTemperature()}
	maxTokens := opts.ResolveMaxTokens(0)
	if maxTokens > 0 {
		config.MaxOutputTokens = &maxTokens
	}

	if thinking := llmstream.ResolveGeminiThinking(opts.Info, opts.Reasoning); thinking != nil {
		if thinking.ThinkingBudget != nil {
			clamped := llmstream.ClampReasoningBudget(thinking.ThinkingBudget, opts.ResolveMaxTokens(4096), opts.Info)
			thinking.ThinkingBudget = &clamped
		}
		config.ThinkingConfig = thinking
	}
	req.GenerationConfig = config

	if len(opts.Tools) > 0 {
		declarations := make([]functionDeclaration, 0, len(opts.Tools))
		for _, tool := range opts.Tools {
			declarations = append(declarations, functionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			})
		}
		req.Tools = []geminiTool{{FunctionDeclarations: declarations}}
		req.ToolConfig = convertToolChoice(opts.ToolChoice)
	}

	return req, nil
}

// convertToolChoice converts the library tool choice to Gemini's
// functionCallingConfig.
func convertToolChoice(choice *llmstream.ToolChoice) *toolConfig {
	if choice == nil {
		return nil
	}
	switch choice.Mode {
	case llmstream.ToolChoiceModeAuto:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "AUTO"}}
	case llmstream.ToolChoiceModeRequired:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "ANY"}}
	case llmstream.ToolChoiceModeNone:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "NONE"}}
	case llmstream.ToolChoiceModeSpecific:
		if choice.ToolName == nil {
			return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "AUTO"}}
		}
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{
			Mode:                 "ANY",
			AllowedFunctionNames: []string{*choice.ToolName},
		}}
	default:
		return nil
	}
}

// handleErrorResponse parses non-200 responses into typed provider errors.
func (p *Provider) handleErrorResponse(resp *http.Response, model string) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
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
