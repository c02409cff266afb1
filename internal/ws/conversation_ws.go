package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/authz"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// ConversationReader loads a conversation the principal may view.
type ConversationReader interface {
	Get(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) (models.ConversationSummary, error)
}

// ConversationSocketHandler streams message events of one conversation to its participants.
type ConversationSocketHandler struct {
	hub           *Hub
	tokens        middleware.TokenVerifier
	users         middleware.PrincipalResolver
	conversations ConversationReader
	logger        zerolog.Logger
}

// NewConversationSocketHandler constructs a ConversationSocketHandler.
func NewConversationSocketHandler(hub *Hub, tokens middleware.TokenVerifier, users middleware.PrincipalResolver, conversations ConversationReader, logger zerolog.Logger) *ConversationSocketHandler {
	return &ConversationSocketHandler{hub: hub, tokens: tokens, users: users, conversations: conversations, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, checks membership, then upgrades the connection.
func (h *ConversationSocketHandler) Handle(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	principal, err := h.authenticate(ctx, c)
	if err != nil {
		if errors.Is(err, authz.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
			return
		}
		h.logger.Error().Err(err).Msg("websocket authentication failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	middleware.SetPrincipal(c, principal)

	if _, err := h.conversations.Get(ctx, principal, conversationID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case authz.IsForbidden(err):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation", "code": "not_participant"})
		default:
			h.logger.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("websocket membership check")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          c.ClientIP(),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(conversationID, conn, info)

	// The handshake span ends with this request; the read loop outlives it.
	loopCtx := context.WithoutCancel(ctx)
	observability.IncWSActive()
	publishWSEvent(loopCtx, conversationID, info, "ws_connect", "")

	go h.readLoop(loopCtx, conversationID, conn, info)
}

// readLoop drains client frames until the connection closes.
func (h *ConversationSocketHandler) readLoop(ctx context.Context, conversationID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		observability.DecWSActive()
		publishWSEvent(ctx, conversationID, info, "ws_disconnect", closeReason)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			// an evicted connection is already gone from the hub
			registered := h.hub.RemoveClient(conversationID, conn)
			if registered && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, conversationID, info, "ws_error", closeReason)
			}
			return
		}
	}
}

func (h *ConversationSocketHandler) authenticate(ctx context.Context, c *gin.Context) (*authz.Principal, error) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		return nil, authz.ErrUnauthenticated
	}

	userID, err := h.tokens.Parse(token, auth.AccessToken)
	if err != nil {
		return nil, authz.ErrUnauthenticated
	}
	return h.users.Principal(ctx, userID)
}
