package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/storyboard/internal/errors"
)

// AnthropicInvoker implements Invoker against the Anthropic Claude API.
type AnthropicInvoker struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	model     string
	maxTokens int
}

// AnthropicConfig configures an AnthropicInvoker.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Anthropic API request/response structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason,omitempty"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicInvoker creates a new Anthropic structured-output invoker.
func NewAnthropicInvoker(config AnthropicConfig) (*AnthropicInvoker, error) {
	if config.APIKey == "" {
		return nil, errors.NewProviderAuthError("anthropic")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	return &AnthropicInvoker{
		apiKey:    config.APIKey,
		baseURL:   config.BaseURL,
		client:    &http.Client{Timeout: config.Timeout},
		model:     config.Model,
		maxTokens: config.MaxTokens,
	}, nil
}

// Invoke implements Invoker.Invoke. Transport failures, unparseable output,
// and schema mismatches are returned as distinct error codes.
func (p *AnthropicInvoker) Invoke(ctx context.Context, schema *Schema, messages []Message) (json.RawMessage, error) {
	anthReq := p.buildRequest(schema, messages)

	reqBody, err := json.Marshal(anthReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewProviderTransportError("anthropic", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.NewProviderTransportError("anthropic", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp anthropicResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
				return nil, errors.NewProviderAuthError("anthropic")
			}
			return nil, errors.NewProviderTransportError("anthropic",
				fmt.Errorf("%s: %s", errResp.Error.Type, errResp.Error.Message))
		}
		return nil, errors.NewProviderTransportError("anthropic",
			fmt.Errorf("http %d: %s", httpResp.StatusCode, string(respBody)))
	}

	var anthResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthResp); err != nil {
		return nil, errors.NewProviderTransportError("anthropic", err)
	}

	content := ""
	if len(anthResp.Content) > 0 {
		content = anthResp.Content[0].Text
	}

	structured := ExtractJSON(content)
	if structured == nil {
		return nil, errors.NewProviderParseError("anthropic",
			fmt.Errorf("no JSON object in response (%d chars)", len(content)))
	}

	if err := schema.Validate(structured); err != nil {
		return nil, errors.NewProviderSchemaError("anthropic", err)
	}

	return structured, nil
}

// buildRequest constructs an Anthropic API request that instructs the model
// to answer with schema-conforming JSON only.
func (p *AnthropicInvoker) buildRequest(schema *Schema, messages []Message) *anthropicRequest {
	system := fmt.Sprintf(
		"Respond with a single JSON object matching the %s schema below. No prose, no code fences.\n\nSchema:\n%s",
		schema.Name, schema.PromptFragment())

	anthMessages := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content + "\n\n" + system
			continue
		}
		anthMessages = append(anthMessages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	return &anthropicRequest{
		Model:     p.model,
		Messages:  anthMessages,
		System:    system,
		MaxTokens: p.maxTokens,
	}
}

// ExtractJSON pulls the first top-level JSON object or array out of model
// output, tolerating code fences and surrounding prose.
func ExtractJSON(content string) json.RawMessage {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return nil
	}

	opener := content[start]
	var closer byte = '}'
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				candidate := json.RawMessage(content[start : i+1])
				if json.Valid(candidate) {
					return candidate
				}
				return nil
			}
		}
	}
	return nil
}
