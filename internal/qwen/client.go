// Package qwen talks to an OpenAI-compatible vision-language chat
// completions endpoint and builds its wire-format messages.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// DefaultEndpoint is the compatible-mode chat completions URL.
	DefaultEndpoint = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	// DefaultModel is used when no model is configured.
	DefaultModel = "qwen-vl-max"

	// maxOutputTokens caps the response length. Fixed, not configurable.
	maxOutputTokens = 2048
)

// Client calls the upstream chat completions endpoint.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client; empty endpoint or model fall back to the
// defaults. No request timeout is applied beyond the transport's own
// behavior.
func NewClient(endpoint, model, apiKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type apiRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Usage reports upstream token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Completion is the extracted result of a successful upstream call.
type Completion struct {
	ID      string
	Content string
	Usage   Usage
}

// APIError is a non-success response from the upstream service. The
// message is the upstream's own when extractable, else the raw error
// body, else a generic status-based message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream api error (status %d): %s", e.StatusCode, e.Message)
}

// Generate sends the message list to the upstream model and extracts the
// first choice's content. Non-2xx responses come back as *APIError;
// transport failures are returned as-is so callers can report the
// underlying description.
func (c *Client) Generate(ctx context.Context, messages []Message) (*Completion, error) {
	body, err := json.Marshal(apiRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(resp.StatusCode, raw),
		}
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	var content string
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}
	return &Completion{ID: parsed.ID, Content: content, Usage: parsed.Usage}, nil
}

// extractErrorMessage pulls error.message out of a structured error
// body. Non-JSON bodies are used verbatim; empty bodies and JSON without
// a message fall back to a generic status line.
func extractErrorMessage(status int, raw []byte) string {
	fallback := fmt.Sprintf("API request failed with status %d", status)
	if json.Valid(raw) {
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
			return payload.Error.Message
		}
		return fallback
	}
	if len(raw) > 0 {
		return string(raw)
	}
	return fallback
}
