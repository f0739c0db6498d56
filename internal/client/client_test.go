package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vlshowcase/internal/models"
)

func TestGenerateSuccess(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id": "resp-1", "content": "a beach at sunset", "usage": {"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13}}`))
	}))
	defer server.Close()

	c := New(server.URL)
	result, err := c.Generate(context.Background(), "describe", URLAttachment("https://example.com/pic.jpg"), nil)
	require.NoError(t, err)

	assert.Equal(t, "resp-1", result.ID)
	assert.Equal(t, "a beach at sunset", result.Content)
	assert.Equal(t, 13, result.Usage.TotalTokens)

	assert.Equal(t, "describe", got.Prompt)
	require.NotNil(t, got.Image)
	assert.Equal(t, "url", got.Image.Type)
	assert.Equal(t, "https://example.com/pic.jpg", got.Image.Data)
}

func TestGenerateSendsHistory(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id": "resp-2", "content": "ok", "usage": {}}`))
	}))
	defer server.Close()

	history := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "q", ImageURL: "https://example.com/a.png"},
		{Role: models.RoleAssistant, Content: "a"},
	}
	c := New(server.URL)
	_, err := c.Generate(context.Background(), "follow-up", nil, history)
	require.NoError(t, err)

	require.Len(t, got.ConversationHistory, 2)
	assert.Equal(t, models.RoleUser, got.ConversationHistory[0].Role)
	assert.Equal(t, "https://example.com/a.png", got.ConversationHistory[0].ImageURL)
	assert.Nil(t, got.Image)
}

func TestGenerateSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error": {"message": "backend overloaded", "code": "API_ERROR"}}`))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Generate(context.Background(), "p", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "backend overloaded", err.Error())
}

func TestGenerateTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := New(server.URL)
	_, err := c.Generate(context.Background(), "p", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call generate endpoint")
}

func TestFileAttachmentEncodesDataURI(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	attachment, err := FileAttachment(png)
	require.NoError(t, err)
	assert.Equal(t, "file", attachment.Type)
	assert.True(t, strings.HasPrefix(attachment.Data, "data:image/png;base64,"))
}

func TestFileAttachmentRejectsNonImage(t *testing.T) {
	_, err := FileAttachment([]byte("plain text, not an image at all"))
	assert.Error(t, err)
}
