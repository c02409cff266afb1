package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/middleware"
	"messaging-service/internal/services"
)

// MessageHandler serves the flat message routes.
type MessageHandler struct {
	messages MessageService
}

func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type createMessageRequest struct {
	Conversation  *uuid.UUID `json:"conversation"`
	MessageBody   string     `json:"message_body"`
	ParentMessage *uuid.UUID `json:"parent_message"`
	Receiver      *uuid.UUID `json:"receiver"`
}

type updateMessageRequest struct {
	MessageBody *string `json:"message_body"`
}

// List returns messages from every conversation of the caller.
func (h *MessageHandler) List(c *gin.Context) {
	filter, page, pageSize, ok := messageFilter(c)
	if !ok {
		return
	}
	messages, total, err := h.messages.ListForUser(c.Request.Context(), middleware.PrincipalFromContext(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPage(messages, total, page, pageSize))
}

// Create posts a message into the conversation named in the body.
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Conversation == nil || *req.Conversation == uuid.Nil {
		badRequest(c, "conversation", "this field is required")
		return
	}
	msg, err := h.messages.Create(c.Request.Context(), middleware.PrincipalFromContext(c), services.CreateMessageInput{
		ConversationID: *req.Conversation,
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

func (h *MessageHandler) Get(c *gin.Context) {
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}
	msg, err := h.messages.Get(c.Request.Context(), middleware.PrincipalFromContext(c), messageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Update edits the body of one of the caller's messages.
func (h *MessageHandler) Update(c *gin.Context) {
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}
	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.MessageBody == nil {
		badRequest(c, "message_body", "this field is required")
		return
	}
	msg, err := h.messages.Update(c.Request.Context(), middleware.PrincipalFromContext(c), messageID, *req.MessageBody)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete removes one of the caller's messages with its replies.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}
	if err := h.messages.Delete(c.Request.Context(), middleware.PrincipalFromContext(c), messageID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}
	msg, err := h.messages.MarkRead(c.Request.Context(), middleware.PrincipalFromContext(c), messageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Unread returns unread messages addressed to the caller.
func (h *MessageHandler) Unread(c *gin.Context) {
	messages, err := h.messages.Unread(c.Request.Context(), middleware.PrincipalFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(messages), "results": messages})
}

func (h *MessageHandler) History(c *gin.Context) {
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}
	history, err := h.messages.History(c.Request.Context(), middleware.PrincipalFromContext(c), messageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
