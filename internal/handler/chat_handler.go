package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"LanChat/internal/apperror"
	"LanChat/internal/auth"
	"LanChat/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatService is what the REST surface needs from the conversation store.
type ChatService interface {
	ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	CreateConversation(ctx context.Context, requesterID string, req model.CreateConversationRequest) (model.CreateConversationResult, error)
	ManageParticipants(ctx context.Context, conversationID, requesterID string, req model.ManageParticipantsRequest) (*model.Conversation, error)
	FetchMessages(ctx context.Context, conversationID, requesterID string, cursor *time.Time, limit int) ([]model.MessageView, error)
	SendMessage(ctx context.Context, conversationID, senderID string, req model.SendMessageRequest) (*model.MessageView, error)
	EditMessage(ctx context.Context, messageID, requesterID, content string) (*model.MessageEdited, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (model.Reactions, error)
	MarkRead(ctx context.Context, messageID, readerID string) error
}

type ChatHandler interface {
	ListConversations(c *gin.Context)
	CreateConversation(c *gin.Context)
	ManageParticipants(c *gin.Context)
	FetchMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	EditMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	ToggleReaction(c *gin.Context)
}

type chatHandler struct {
	service ChatService
	logger  *zap.Logger
}

func NewChatHandler(service ChatService, logger *zap.Logger) ChatHandler {
	return &chatHandler{
		service: service,
		logger:  logger,
	}
}

var errInvalidBody = apperror.Validation("invalid request body")

// caller returns the identity set by the auth middleware.
func (h *chatHandler) caller(c *gin.Context) (auth.Identity, bool) {
	id, found := auth.FromContext(c)
	if !found {
		fail(c, h.logger, apperror.ErrMissingToken)
	}
	return id, found
}

func (h *chatHandler) ListConversations(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	conversations, err := h.service.ListConversations(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "", conversations)
}

func (h *chatHandler) CreateConversation(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	var req model.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.logger, errInvalidBody)
		return
	}

	result, err := h.service.CreateConversation(c.Request.Context(), id.UserID, req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	if result.Existing {
		ok(c, http.StatusOK, "Conversation already exists", result)
		return
	}
	ok(c, http.StatusCreated, "Conversation created", result)
}

func (h *chatHandler) ManageParticipants(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	var req model.ManageParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.logger, errInvalidBody)
		return
	}

	conv, err := h.service.ManageParticipants(c.Request.Context(), c.Param("id"), id.UserID, req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "Participants updated", conv)
}

func (h *chatHandler) FetchMessages(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	var cursor *time.Time
	if raw := c.Query("cursor"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			fail(c, h.logger, apperror.ErrInvalidCursor)
			return
		}
		cursor = &t
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, h.logger, apperror.Validation("limit must be a number"))
			return
		}
		limit = n
	}

	messages, err := h.service.FetchMessages(c.Request.Context(), c.Param("id"), id.UserID, cursor, limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "", messages)
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.logger, errInvalidBody)
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), c.Param("id"), id.UserID, req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, "Message sent", msg)
}

func (h *chatHandler) EditMessage(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	var req model.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.logger, errInvalidBody)
		return
	}

	edited, err := h.service.EditMessage(c.Request.Context(), c.Param("id"), id.UserID, req.Content)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "Message updated", edited)
}

func (h *chatHandler) DeleteMessage(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), c.Param("id"), id.UserID); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "Message deleted", nil)
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), id.UserID); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "Message marked as read", nil)
}

func (h *chatHandler) ToggleReaction(c *gin.Context) {
	id, found := h.caller(c)
	if !found {
		return
	}

	var req model.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.logger, errInvalidBody)
		return
	}

	reactions, err := h.service.ToggleReaction(c.Request.Context(), c.Param("id"), id.UserID, req.Emoji)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"reactions": reactions})
}
