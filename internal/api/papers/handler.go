// Package papers serves paper upload, ingestion and chat endpoints.
package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/liliang-cn/paperchat/internal/api/httperr"
	"github.com/liliang-cn/paperchat/internal/api/middleware"
	"github.com/liliang-cn/paperchat/internal/domain"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by the CORS and auth middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Ingester uploads, ingests and manages a user's papers
type Ingester interface {
	Upload(ctx context.Context, userID, filename string, src io.Reader, title string, metadata map[string]any) (*domain.Paper, error)
	Trigger(ctx context.Context, userID, paperID string) error
	GetPaper(ctx context.Context, userID, paperID string) (*domain.Paper, error)
	ListPapers(ctx context.Context, userID string) ([]*domain.Paper, error)
	DeletePaper(ctx context.Context, userID, paperID string) error
}

// Chatter answers questions about a paper
type Chatter interface {
	Chat(ctx context.Context, userID string, req *domain.ChatRequest) (*domain.ChatResponse, error)
	Conversation(ctx context.Context, userID, paperID string) (*domain.ConversationView, error)
	StartConversation(ctx context.Context, userID, paperID string) (*domain.Conversation, error)
}

// StatusSource publishes ingestion status events
type StatusSource interface {
	Subscribe(paperID string) (<-chan domain.StatusEvent, func())
}

// Handler handles paper API requests
type Handler struct {
	ingest Ingester
	chat   Chatter
	status StatusSource
	logger *zap.Logger
}

// NewHandler creates a new papers handler
func NewHandler(ingest Ingester, chat Chatter, status StatusSource, logger *zap.Logger) *Handler {
	return &Handler{
		ingest: ingest,
		chat:   chat,
		status: status,
		logger: logger.Named("papers"),
	}
}

// RegisterRoutes registers paper routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Upload)
	r.GET("", h.List)
	r.POST("/process", h.Process)
	r.POST("/chat", h.Chat)

	r.GET("/:id", h.Get)
	r.DELETE("/:id", h.Delete)
	r.POST("/:id/process", h.Process)
	r.GET("/:id/status/ws", h.StatusStream)
	r.GET("/:id/conversation", h.Conversation)
	r.POST("/:id/conversations", h.StartConversation)
}

// Upload accepts a multipart PDF and starts ingestion
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	var metadata map[string]any
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "metadata must be a JSON object"})
			return
		}
	}

	src, err := file.Open()
	if err != nil {
		httperr.Abort(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer src.Close()

	paper, err := h.ingest.Upload(c.Request.Context(), middleware.UserID(c), file.Filename, src, c.PostForm("title"), metadata)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusAccepted, paper)
}

// List returns the caller's papers
func (h *Handler) List(c *gin.Context) {
	papers, err := h.ingest.ListPapers(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	if papers == nil {
		papers = []*domain.Paper{}
	}

	c.JSON(http.StatusOK, gin.H{"papers": papers})
}

// Get returns one paper; clients poll it for processed and status
func (h *Handler) Get(c *gin.Context) {
	paper, err := h.ingest.GetPaper(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, paper)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.ingest.DeletePaper(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "paper deleted"})
}

// Process triggers ingestion. The paper id comes from the path or the body.
func (h *Handler) Process(c *gin.Context) {
	paperID := c.Param("id")
	if paperID == "" {
		var req domain.ProcessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		paperID = req.PaperID
	}

	if err := h.ingest.Trigger(c.Request.Context(), middleware.UserID(c), paperID); err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"paper_id": paperID, "message": "processing started"})
}

func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chat.Chat(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Conversation returns the latest conversation about a paper
func (h *Handler) Conversation(c *gin.Context) {
	view, err := h.chat.Conversation(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// StartConversation opens a fresh conversation about a paper
func (h *Handler) StartConversation(c *gin.Context) {
	conv, err := h.chat.StartConversation(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// StatusStream pushes status events for a paper over a websocket. The
// current status is sent first; the socket closes after a terminal event.
func (h *Handler) StatusStream(c *gin.Context) {
	userID := middleware.UserID(c)
	paperID := c.Param("id")

	// subscribe before the snapshot so no transition falls in between
	events, cancel := h.status.Subscribe(paperID)
	defer cancel()

	paper, err := h.ingest.GetPaper(c.Request.Context(), userID, paperID)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	// the read loop only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	snapshot := domain.StatusEvent{
		PaperID:   paper.ID,
		Status:    paper.Status,
		Processed: paper.Processed,
		Error:     paper.Error,
		Timestamp: paper.UpdatedAt,
	}
	if !h.send(conn, snapshot) || snapshot.Terminal() {
		h.close(conn)
		return
	}

	for {
		select {
		case ev := <-events:
			if !h.send(conn, ev) || ev.Terminal() {
				h.close(conn)
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, ev domain.StatusEvent) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("websocket write failed", zap.String("paper_id", ev.PaperID), zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
