package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bloom-client/internal/domain"
	"bloom-client/internal/service"
)

// Conversation es lo que el gateway necesita del controlador.
type Conversation interface {
	SendTurnAsync(ctx context.Context, text string, pdfContextIDs []string, attachments []domain.Attachment) error
	NewChat(ctx context.Context)
	SelectWidget(index int) error
	Snapshot() service.Snapshot
	Subscribe(obs service.Observer) func()
}

const eventsBuffer = 64

// ConversationHandler expone la conversación a la capa de presentación.
type ConversationHandler struct {
	logger *zap.Logger
	conv   Conversation
}

func NewConversationHandler(logger *zap.Logger, conv Conversation) *ConversationHandler {
	return &ConversationHandler{logger: logger, conv: conv}
}

// GetConversation maneja GET /conversation.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	c.JSON(http.StatusOK, h.conv.Snapshot())
}

// PostTurn maneja POST /conversation/turns. El turno sigue en segundo plano;
// el progreso se observa por /conversation/events.
func (h *ConversationHandler) PostTurn(c *gin.Context) {
	var req struct {
		Message       string              `json:"message" binding:"required"`
		PDFContextIDs []string            `json:"pdf_context_ids"`
		Attachments   []domain.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post turn request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	// El turno sobrevive al request HTTP que lo inició.
	err := h.conv.SendTurnAsync(context.WithoutCancel(c.Request.Context()), req.Message, req.PDFContextIDs, req.Attachments)
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	case errors.Is(err, service.ErrTurnInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a turn is already in progress"})
		return
	case err != nil:
		h.logger.Error("send turn failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "conversation unavailable"})
		return
	}

	c.JSON(http.StatusAccepted, h.conv.Snapshot())
}

// NewChat maneja POST /conversation/new.
func (h *ConversationHandler) NewChat(c *gin.Context) {
	h.conv.NewChat(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, h.conv.Snapshot())
}

// SelectWidget maneja PUT /conversation/widgets/selected.
func (h *ConversationHandler) SelectWidget(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.conv.SelectWidget(*req.Index); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.conv.Snapshot())
}

// Events maneja GET /conversation/events: un evento "snapshot" por cada
// publicación del controlador, empezando por el estado actual. Si el cliente
// no consume a tiempo se descartan snapshots intermedios; cada uno es completo.
func (h *ConversationHandler) Events(c *gin.Context) {
	ch := make(chan service.Snapshot, eventsBuffer)
	unsubscribe := h.conv.Subscribe(func(s service.Snapshot) {
		select {
		case ch <- s:
		default:
			h.logger.Debug("dropping snapshot for slow events client", zap.Uint64("version", s.Version))
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", h.conv.Snapshot())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case s := <-ch:
			c.SSEvent("snapshot", s)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
