package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/middleware"
	"messaging-service/internal/services"
)

// ConversationHandler serves conversations and the messages nested under them.
type ConversationHandler struct {
	conversations ConversationService
	messages      MessageService
}

func NewConversationHandler(conversations ConversationService, messages MessageService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

type createConversationRequest struct {
	Participants []uuid.UUID `json:"participants"`
}

type participantRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type nestedMessageRequest struct {
	MessageBody   string     `json:"message_body"`
	ParentMessage *uuid.UUID `json:"parent_message"`
	Receiver      *uuid.UUID `json:"receiver"`
}

// List returns the caller's conversations, most recently active first.
func (h *ConversationHandler) List(c *gin.Context) {
	conversations, err := h.conversations.ListFor(c.Request.Context(), middleware.PrincipalFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// Create starts a conversation. The caller is always a participant.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	conv, err := h.conversations.Create(c.Request.Context(), middleware.PrincipalFromContext(c), req.Participants)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	conv, err := h.conversations.Get(c.Request.Context(), middleware.PrincipalFromContext(c), conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id", "must be a valid UUID")
		return
	}
	conv, err := h.conversations.AddParticipant(c.Request.Context(), middleware.PrincipalFromContext(c), conversationID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// RemoveParticipant answers 204 when the removal emptied and deleted the conversation.
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	conv, err := h.conversations.RemoveParticipant(c.Request.Context(), middleware.PrincipalFromContext(c), conversationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(conv.Participants) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages returns one page of the conversation's messages.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	filter, page, pageSize, ok := messageFilter(c)
	if !ok {
		return
	}
	messages, total, err := h.messages.List(c.Request.Context(), middleware.PrincipalFromContext(c), conversationID, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPage(messages, total, page, pageSize))
}

// CreateMessage posts into the conversation named by the path.
func (h *ConversationHandler) CreateMessage(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	var req nestedMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	msg, err := h.messages.Create(c.Request.Context(), middleware.PrincipalFromContext(c), services.CreateMessageInput{
		ConversationID: conversationID,
		Body:           req.MessageBody,
		ParentID:       req.ParentMessage,
		ReceiverID:     req.Receiver,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Thread returns top-level messages with their direct replies.
func (h *ConversationHandler) Thread(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	threads, err := h.messages.Thread(c.Request.Context(), middleware.PrincipalFromContext(c), conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}
