package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"deepchat/internal/config"
	"deepchat/internal/models"
	"deepchat/internal/upstream"
)

const defaultModel = "deepseek-chat"

// streamTimeout bounds the wall clock of one relay round trip, including
// the upstream stream itself.
const streamTimeout = 2 * time.Minute

// Handler is the server-side relay boundary: it validates the inbound
// request, selects the upstream adapter, and pipes the multiplexed stream
// back to the caller.
type Handler struct {
	cfg     *config.Config
	dial    func(upstream.Endpoint) upstream.Streamer
	timeout time.Duration
}

// NewHandler builds the relay around the server's builtin provider config.
func NewHandler(cfg *config.Config) *Handler {
	return &Handler{
		cfg:     cfg,
		dial:    upstream.New,
		timeout: streamTimeout,
	}
}

// RegisterRoutes attaches the relay and its health probe.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/chat", h.health)
	api.POST("/chat", h.relay)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "API is running"})
}

type apiConfigPayload struct {
	Provider string `json:"provider"`
	APIURL   string `json:"apiUrl"`
	APIKey   string `json:"apiKey"`
}

type chatRequest struct {
	Messages     []models.Message  `json:"messages"`
	Model        string            `json:"model"`
	SystemPrompt string            `json:"systemPrompt"`
	APIConfig    *apiConfigPayload `json:"apiConfig"`
}

func (h *Handler) relay(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if req.Messages == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	endpoint, model := h.selectEndpoint(req)
	if req.Model != "" {
		// The caller-supplied model name is trusted as-is.
		model = req.Model
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stream, err := h.dial(endpoint).Stream(ctx, upstream.Request{
		Messages:     upstream.StripReasoning(req.Messages),
		Model:        model,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		h.writeDispatchError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if err := pump(stream, newEventWriter(c.Writer, flusher)); err != nil {
		// Streaming already started; closing early is the only signal left.
		log.Printf("relay stream aborted: %v", err)
	}
}

// selectEndpoint honors caller-supplied provider configuration and falls
// back to the builtin default provider otherwise.
func (h *Handler) selectEndpoint(req chatRequest) (upstream.Endpoint, string) {
	if req.APIConfig != nil && req.APIConfig.Provider != "" && req.APIConfig.Provider != models.ProviderDeepSeek {
		ep := upstream.Endpoint{
			Family:  upstream.FamilyFor(req.APIConfig.Provider),
			BaseURL: req.APIConfig.APIURL,
			APIKey:  req.APIConfig.APIKey,
		}
		return ep, defaultModel
	}
	prov := h.cfg.DefaultProvider()
	model := prov.Model
	if model == "" {
		model = defaultModel
	}
	return upstream.Endpoint{
		Family:  upstream.FamilyOpenAI,
		BaseURL: prov.BaseURL,
		APIKey:  prov.APIKey,
	}, model
}

func (h *Handler) writeDispatchError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "Request timed out",
			"details": err.Error(),
		})
		return
	}
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get response",
			"details": upErr.Detail,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Failed to get response",
		"details": err.Error(),
	})
}
