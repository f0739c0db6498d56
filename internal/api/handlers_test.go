package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"vlshowcase/internal/qwen"
)

func newTestRouter(t *testing.T, upstreamURL, apiKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(qwen.NewClient(upstreamURL, "qwen-vl-max", apiKey), apiKey)
	handler.RegisterRoutes(router)
	return router
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status: want %d got %d, body: %s", want, rec.Code, rec.Body.String())
	}
}

func decodeJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode response %s: %v", data, err)
	}
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func stubUpstream(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

const successUpstreamBody = `{
	"id": "chatcmpl-42",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "an orange tabby"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 21, "completion_tokens": 7, "total_tokens": 28}
}`

func TestGenerateRejectsNonPOST(t *testing.T) {
	upstream := stubUpstream(t, http.StatusOK, successUpstreamBody)
	defer upstream.Close()
	router := newTestRouter(t, upstream.URL, "key")

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := doJSONRequest(t, router, method, "/api/generate", nil)
		assertStatus(t, rec, http.StatusMethodNotAllowed)
		var body errorEnvelope
		decodeJSON(t, rec.Body.Bytes(), &body)
		if body.Error.Message != "Method not allowed. Use POST." {
			t.Fatalf("unexpected 405 message for %s: %q", method, body.Error.Message)
		}
	}
}

func TestGenerateRejectsInvalidBodies(t *testing.T) {
	upstream := stubUpstream(t, http.StatusOK, successUpstreamBody)
	defer upstream.Close()
	router := newTestRouter(t, upstream.URL, "key")

	cases := []struct {
		name string
		body any
	}{
		{"empty body", nil},
		{"missing prompt", map[string]any{"image": map[string]string{"type": "url", "data": "https://x"}}},
		{"empty prompt", map[string]any{"prompt": ""}},
		{"whitespace prompt", map[string]any{"prompt": "   "}},
		{"bad image type", map[string]any{"prompt": "p", "image": map[string]string{"type": "blob", "data": "x"}}},
		{"empty image data", map[string]any{"prompt": "p", "image": map[string]string{"type": "file", "data": " "}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSONRequest(t, router, http.MethodPost, "/api/generate", tc.body)
			assertStatus(t, rec, http.StatusBadRequest)
			var body errorEnvelope
			decodeJSON(t, rec.Body.Bytes(), &body)
			if body.Error.Message == "" || body.Error.Code != "" {
				t.Fatalf("validation errors carry a message and no code, got %+v", body.Error)
			}
		})
	}
}

func TestGenerateMissingAPIKey(t *testing.T) {
	upstream := stubUpstream(t, http.StatusOK, successUpstreamBody)
	defer upstream.Close()
	router := newTestRouter(t, upstream.URL, "")

	rec := doJSONRequest(t, router, http.MethodPost, "/api/generate", map[string]any{"prompt": "hello"})
	assertStatus(t, rec, http.StatusInternalServerError)
	var body errorEnvelope
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Error.Code != "CONFIG_ERROR" {
		t.Fatalf("expected CONFIG_ERROR, got %q", body.Error.Code)
	}
	if body.Error.Message != "Server configuration error: API key not configured." {
		t.Fatalf("unexpected message: %q", body.Error.Message)
	}
}

func TestGenerateUpstreamErrorMapping(t *testing.T) {
	cases := []struct {
		name         string
		upstreamCode int
		upstreamBody string
		wantStatus   int
		wantMessage  string
	}{
		{
			name:         "4xx forwarded with extracted message",
			upstreamCode: http.StatusTooManyRequests,
			upstreamBody: `{"error": {"message": "rate limited"}}`,
			wantStatus:   http.StatusTooManyRequests,
			wantMessage:  "rate limited",
		},
		{
			name:         "5xx remapped to 502",
			upstreamCode: http.StatusServiceUnavailable,
			upstreamBody: `{"error": {"message": "backend overloaded"}}`,
			wantStatus:   http.StatusBadGateway,
			wantMessage:  "backend overloaded",
		},
		{
			name:         "non-json body forwarded verbatim",
			upstreamCode: http.StatusBadRequest,
			upstreamBody: "plain failure text",
			wantStatus:   http.StatusBadRequest,
			wantMessage:  "plain failure text",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			upstream := stubUpstream(t, tc.upstreamCode, tc.upstreamBody)
			defer upstream.Close()
			router := newTestRouter(t, upstream.URL, "key")

			rec := doJSONRequest(t, router, http.MethodPost, "/api/generate", map[string]any{"prompt": "hello"})
			assertStatus(t, rec, tc.wantStatus)
			var body errorEnvelope
			decodeJSON(t, rec.Body.Bytes(), &body)
			if body.Error.Code != "API_ERROR" {
				t.Fatalf("expected API_ERROR, got %q", body.Error.Code)
			}
			if body.Error.Message != tc.wantMessage {
				t.Fatalf("unexpected message: want %q got %q", tc.wantMessage, body.Error.Message)
			}
		})
	}
}

func TestGenerateNetworkError(t *testing.T) {
	upstream := stubUpstream(t, http.StatusOK, successUpstreamBody)
	upstream.Close() // connection refused from here on
	router := newTestRouter(t, upstream.URL, "key")

	rec := doJSONRequest(t, router, http.MethodPost, "/api/generate", map[string]any{"prompt": "hello"})
	assertStatus(t, rec, http.StatusInternalServerError)
	var body errorEnvelope
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Error.Code != "NETWORK_ERROR" {
		t.Fatalf("expected NETWORK_ERROR, got %q", body.Error.Code)
	}
	if want := "Failed to call Qwen API: "; len(body.Error.Message) <= len(want) || body.Error.Message[:len(want)] != want {
		t.Fatalf("message must carry the transport failure, got %q", body.Error.Message)
	}
}

func TestGenerateSuccess(t *testing.T) {
	upstream := stubUpstream(t, http.StatusOK, successUpstreamBody)
	defer upstream.Close()
	router := newTestRouter(t, upstream.URL, "key")

	rec := doJSONRequest(t, router, http.MethodPost, "/api/generate", map[string]any{"prompt": "what animal?"})
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		ID      string     `json:"id"`
		Content string     `json:"content"`
		Usage   qwen.Usage `json:"usage"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.ID != "chatcmpl-42" || body.Content != "an orange tabby" {
		t.Fatalf("unexpected success payload: %+v", body)
	}
	if body.Usage.TotalTokens != 28 {
		t.Fatalf("usage not forwarded: %+v", body.Usage)
	}
}

func TestGenerateForwardsHistoryAndImage(t *testing.T) {
	var captured struct {
		Model    string         `json:"model"`
		Messages []qwen.Message `json:"messages"`
		MaxTok   int            `json:"max_tokens"`
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode upstream request: %v", err)
		}
		_, _ = w.Write([]byte(successUpstreamBody))
	}))
	defer upstream.Close()
	router := newTestRouter(t, upstream.URL, "key")

	reqBody := map[string]any{
		"prompt": "and in the background?",
		"image":  map[string]string{"type": "file", "data": "aGVsbG8="},
		"conversationHistory": []map[string]any{
			{"role": "user", "content": "what animal?", "imageUrl": "https://example.com/cat.jpg"},
			{"role": "assistant", "content": "an orange tabby"},
		},
	}
	rec := doJSONRequest(t, router, http.MethodPost, "/api/generate", reqBody)
	assertStatus(t, rec, http.StatusOK)

	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 upstream messages, got %d", len(captured.Messages))
	}
	first := captured.Messages[0]
	if first.Role != "user" || len(first.Content) != 2 || first.Content[0].Type != "image_url" {
		t.Fatalf("history image must precede its text: %+v", first)
	}
	if first.Content[0].ImageURL.URL != "https://example.com/cat.jpg" {
		t.Fatalf("history image url mismatch: %q", first.Content[0].ImageURL.URL)
	}
	last := captured.Messages[2]
	if last.Role != "user" || len(last.Content) != 2 {
		t.Fatalf("current turn must hold image then text: %+v", last)
	}
	if last.Content[0].ImageURL.URL != "data:image/jpeg;base64,aGVsbG8=" {
		t.Fatalf("file image must get the default data-URI prefix: %q", last.Content[0].ImageURL.URL)
	}
	if last.Content[1].Text != "and in the background?" {
		t.Fatalf("current prompt mismatch: %q", last.Content[1].Text)
	}
	if captured.MaxTok != 2048 {
		t.Fatalf("output cap must be fixed at 2048, got %d", captured.MaxTok)
	}
}
