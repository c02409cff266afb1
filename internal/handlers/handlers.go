package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"messaging-service/internal/auth"
	"messaging-service/internal/authz"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (page-1)*page_size well inside int range.
	maxPage = 1_000_000
)

// UserService is the account surface used by the HTTP layer.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (models.User, error)
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	Principal(ctx context.Context, userID uuid.UUID) (*authz.Principal, error)
	List(ctx context.Context, p *authz.Principal) ([]models.User, error)
	ListAll(ctx context.Context, p *authz.Principal) ([]models.User, error)
	Get(ctx context.Context, p *authz.Principal, userID uuid.UUID) (models.User, error)
	Delete(ctx context.Context, p *authz.Principal, userID uuid.UUID) error
	SetRole(ctx context.Context, p *authz.Principal, userID uuid.UUID, update services.RoleUpdate) (models.User, error)
}

type ConversationService interface {
	Create(ctx context.Context, p *authz.Principal, participantIDs []uuid.UUID) (models.ConversationSummary, error)
	Get(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) (models.ConversationSummary, error)
	ListFor(ctx context.Context, p *authz.Principal) ([]models.ConversationSummary, error)
	AddParticipant(ctx context.Context, p *authz.Principal, conversationID, userID uuid.UUID) (models.ConversationSummary, error)
	RemoveParticipant(ctx context.Context, p *authz.Principal, conversationID, userID uuid.UUID) (models.ConversationSummary, error)
}

type MessageService interface {
	Create(ctx context.Context, p *authz.Principal, in services.CreateMessageInput) (models.Message, error)
	Get(ctx context.Context, p *authz.Principal, messageID uuid.UUID) (models.Message, error)
	Update(ctx context.Context, p *authz.Principal, messageID uuid.UUID, body string) (models.Message, error)
	Delete(ctx context.Context, p *authz.Principal, messageID uuid.UUID) error
	MarkRead(ctx context.Context, p *authz.Principal, messageID uuid.UUID) (models.Message, error)
	List(ctx context.Context, p *authz.Principal, conversationID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error)
	ListForUser(ctx context.Context, p *authz.Principal, filter models.MessageFilter) ([]models.Message, int, error)
	Thread(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) ([]models.MessageThread, error)
	Unread(ctx context.Context, p *authz.Principal) ([]models.Message, error)
	History(ctx context.Context, p *authz.Principal, messageID uuid.UUID) ([]models.MessageHistory, error)
}

type NotificationService interface {
	List(ctx context.Context, p *authz.Principal, unseenOnly bool) ([]models.Notification, error)
	MarkSeen(ctx context.Context, p *authz.Principal, notificationID uuid.UUID) error
}

// TokenIssuer issues and rotates JWT pairs.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (auth.TokenPair, error)
	Refresh(refreshToken string) (uuid.UUID, auth.TokenPair, error)
}

// PaginatedResponse is one page of a listing.
type PaginatedResponse[T any] struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  []T `json:"results"`
}

func newPage[T any](items []T, total, page, pageSize int) PaginatedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PaginatedResponse[T]{Count: total, Page: page, PageSize: pageSize, Results: items}
}

// writeError maps a service error to its HTTP status and JSON body.
func writeError(c *gin.Context, err error) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "code": "invalid", "fields": validation.Fields})
	case errors.Is(err, authz.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthenticated"})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials", "code": "invalid_credentials"})
	case errors.Is(err, authz.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation", "code": "not_participant"})
	case errors.Is(err, authz.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can modify this message", "code": "not_sender"})
	case errors.Is(err, authz.ErrNotReceiver):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the receiver can mark this message as read", "code": "not_receiver"})
	case errors.Is(err, authz.ErrAdminRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied. Admin role required.", "code": "role_required"})
	case errors.Is(err, authz.ErrRoleRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied. Admin or moderator role required.", "code": "role_required"})
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found", "code": "not_found"})
	case errors.Is(err, repositories.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found", "code": "not_found"})
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found", "code": "not_found"})
	case errors.Is(err, repositories.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found", "code": "not_found"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "code": "invalid", "fields": gin.H{field: msg}})
}

// uuidParam parses a path parameter, answering 404 for malformed ids.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "not_found"})
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads page and page_size.
func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, pageSize = 1, defaultPageSize
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "page", "must be a positive integer")
			return 0, 0, false
		}
		if n > maxPage {
			badRequest(c, "page", "must be at most "+strconv.Itoa(maxPage))
			return 0, 0, false
		}
		page = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "page_size", "must be a positive integer")
			return 0, 0, false
		}
		pageSize = min(n, maxPageSize)
	}
	return page, pageSize, true
}

// messageFilter reads sender_id, start_date and end_date along with the page window.
func messageFilter(c *gin.Context) (filter models.MessageFilter, page, pageSize int, ok bool) {
	page, pageSize, ok = pagination(c)
	if !ok {
		return filter, 0, 0, false
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	if raw := c.Query("sender_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "sender_id", "must be a valid UUID")
			return filter, 0, 0, false
		}
		filter.SenderID = &id
	}
	for _, f := range []struct {
		name string
		dst  **time.Time
		end  bool
	}{
		{"start_date", &filter.Since, false},
		{"end_date", &filter.Until, true},
	} {
		raw := c.Query(f.name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw, f.end)
		if err != nil {
			badRequest(c, f.name, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
			return filter, 0, 0, false
		}
		*f.dst = &t
	}
	return filter, page, pageSize, true
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date covers the whole day.
func parseDate(raw string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
