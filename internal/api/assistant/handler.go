// Package assistant serves the research assistant endpoints.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/paperchat/internal/api/httperr"
	"github.com/liliang-cn/paperchat/internal/domain"
)

// Researcher builds a research plan for a topic
type Researcher interface {
	Research(ctx context.Context, query string) (*domain.ResearchResult, error)
}

// Matcher scores a profile against an opportunity
type Matcher interface {
	Score(ctx context.Context, profile domain.ProfileFields, post domain.PostFields) (*domain.MatchScore, error)
}

// Drafter writes cold outreach emails
type Drafter interface {
	Draft(ctx context.Context, req *domain.ColdEmailRequest) (*domain.ColdEmail, error)
}

// Conversant holds a general assistant chat
type Conversant interface {
	Chat(ctx context.Context, messages []domain.AssistantMessage) (*domain.AssistantChatResponse, error)
	ChatStream(ctx context.Context, messages []domain.AssistantMessage) (<-chan domain.StreamChunk, error)
}

// Handler handles assistant API requests
type Handler struct {
	research Researcher
	match    Matcher
	email    Drafter
	chat     Conversant
}

// NewHandler creates a new assistant handler
func NewHandler(research Researcher, match Matcher, email Drafter, chat Conversant) *Handler {
	return &Handler{
		research: research,
		match:    match,
		email:    email,
		chat:     chat,
	}
}

// RegisterRoutes registers assistant routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/research", h.Research)
	r.POST("/match-score", h.MatchScore)
	r.POST("/cold-email", h.ColdEmail)
	r.POST("/chat", h.Chat)
	r.POST("/chat/stream", h.ChatStream)
}

func (h *Handler) Research(c *gin.Context) {
	var req domain.ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.research.Research(c.Request.Context(), req.Query)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) MatchScore(c *gin.Context) {
	var req domain.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	score, err := h.match.Score(c.Request.Context(), req.ProfileFields, req.PostFields)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

func (h *Handler) ColdEmail(c *gin.Context) {
	var req domain.ColdEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email, err := h.email.Draft(c.Request.Context(), &req)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, email)
}

func (h *Handler) Chat(c *gin.Context) {
	var req domain.AssistantChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chat.Chat(c.Request.Context(), req.Messages)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ChatStream streams the assistant reply as server-sent events
func (h *Handler) ChatStream(c *gin.Context) {
	var req domain.AssistantChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := h.chat.ChatStream(c.Request.Context(), req.Messages)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	// Failures before the first fragment still get a proper status
	first, ok := <-stream
	if !ok {
		return
	}
	if first.Type == domain.StreamError {
		httperr.Abort(c, first.Err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	pending := &first
	c.Stream(func(w io.Writer) bool {
		chunk := pending
		if chunk == nil {
			next, ok := <-stream
			if !ok {
				return false
			}
			chunk = &next
		}
		pending = nil

		if chunk.Type == domain.StreamError && httperr.Status(chunk.Err) == http.StatusInternalServerError {
			chunk.Content = "internal server error"
		}
		writeSSE(w, chunk)
		return chunk.Type == domain.StreamContent
	})
}

func writeSSE(w io.Writer, chunk *domain.StreamChunk) {
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", chunk.Type, data)
}
