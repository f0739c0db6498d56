package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"vlshowcase/internal/models"
	"vlshowcase/internal/qwen"
)

// Generator abstracts the upstream model call.
type Generator interface {
	Generate(ctx context.Context, messages []qwen.Message) (*qwen.Completion, error)
}

// Handler wires HTTP routes to the upstream vision-language service.
// It is stateless across invocations; the only side effect of a request
// is the outbound upstream call.
type Handler struct {
	upstream Generator
	apiKey   string
}

// NewHandler constructs a Handler instance.
func NewHandler(upstream Generator, apiKey string) *Handler {
	return &Handler{upstream: upstream, apiKey: apiKey}
}

// RegisterRoutes attaches all HTTP routes to the router. The generate
// route accepts every method so non-POST calls get the contractual 405.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Any("/generate", h.generate)
}

const invalidBodyMessage = `Invalid request body. Required: prompt (string). Optional: image ({ type: "file" | "url", data: string }).`

type imagePayload struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type generateRequest struct {
	Prompt              string                    `json:"prompt"`
	Image               *imagePayload             `json:"image"`
	ConversationHistory []models.ConversationTurn `json:"conversationHistory"`
}

func errorBody(message, code string) gin.H {
	e := gin.H{"message": message}
	if code != "" {
		e["code"] = code
	}
	return gin.H{"error": e}
}

func validRequest(req *generateRequest) bool {
	if strings.TrimSpace(req.Prompt) == "" {
		return false
	}
	if req.Image != nil {
		if req.Image.Type != "file" && req.Image.Type != "url" {
			return false
		}
		if strings.TrimSpace(req.Image.Data) == "" {
			return false
		}
	}
	return true
}

func (h *Handler) generate(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, errorBody("Method not allowed. Use POST.", ""))
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(invalidBodyMessage, ""))
		return
	}
	if !validRequest(&req) {
		c.JSON(http.StatusBadRequest, errorBody(invalidBodyMessage, ""))
		return
	}

	if h.apiKey == "" {
		c.JSON(http.StatusInternalServerError,
			errorBody("Server configuration error: API key not configured.", "CONFIG_ERROR"))
		return
	}

	var image *qwen.ImageSource
	if req.Image != nil {
		image = &qwen.ImageSource{Kind: qwen.ImageSourceKind(req.Image.Type), Data: req.Image.Data}
	}
	messages := qwen.BuildMessages(req.Prompt, image, req.ConversationHistory)

	completion, err := h.upstream.Generate(c.Request.Context(), messages)
	if err != nil {
		var apiErr *qwen.APIError
		if errors.As(err, &apiErr) {
			status := apiErr.StatusCode
			if status >= http.StatusInternalServerError {
				status = http.StatusBadGateway
			}
			log.Warn().Int("upstream_status", apiErr.StatusCode).Msg("upstream request failed")
			c.JSON(status, errorBody(apiErr.Message, "API_ERROR"))
			return
		}
		log.Error().Err(err).Msg("upstream unreachable")
		c.JSON(http.StatusInternalServerError,
			errorBody(fmt.Sprintf("Failed to call Qwen API: %s", err.Error()), "NETWORK_ERROR"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      completion.ID,
		"content": completion.Content,
		"usage":   completion.Usage,
	})
}
