// Package client is the client-side wrapper around the showcase's
// generate endpoint: it encodes the request, posts it, and surfaces the
// server's error messages as plain errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vlshowcase/internal/imageproc"
	"vlshowcase/internal/models"
)

// ImageAttachment is the request's image field: Data holds a remote URL
// (url type) or a data-URI string (file type).
type ImageAttachment struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// FileAttachment encodes local image bytes into a file-type attachment.
func FileAttachment(data []byte) (*ImageAttachment, error) {
	uri, err := imageproc.EncodeBytes(data)
	if err != nil {
		return nil, err
	}
	return &ImageAttachment{Type: "file", Data: uri}, nil
}

// URLAttachment wraps a remote image URL.
func URLAttachment(url string) *ImageAttachment {
	return &ImageAttachment{Type: "url", Data: url}
}

// Usage mirrors the server's token accounting fields.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the server's success payload.
type Result struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type generateRequest struct {
	Prompt              string                    `json:"prompt"`
	Image               *ImageAttachment          `json:"image,omitempty"`
	ConversationHistory []models.ConversationTurn `json:"conversationHistory,omitempty"`
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client posts generate requests to a showcase server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for the server at baseURL, e.g.
// "http://localhost:8090".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Generate submits a prompt with an optional image and optional prior
// conversation turns. Error responses from the server are returned as
// errors carrying the server's message.
func (c *Client) Generate(ctx context.Context, prompt string, image *ImageAttachment, history []models.ConversationTurn) (*Result, error) {
	payload, err := json.Marshal(generateRequest{
		Prompt:              prompt,
		Image:               image,
		ConversationHistory: history,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call generate endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		return nil, errors.New(envelope.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from server", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
