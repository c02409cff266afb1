package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/authz"
	"messaging-service/internal/middleware"
	"messaging-service/internal/telemetry"
)

// UserHandler serves the user directory and self-service deletion.
type UserHandler struct {
	users UserService
	audit *telemetry.AuditEmitter
}

func NewUserHandler(users UserService, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{users: users, audit: audit}
}

// List returns active users.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), middleware.PrincipalFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) Get(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), middleware.PrincipalFromContext(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteMe removes the caller's account and everything attached to it.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)
	if principal == nil {
		writeError(c, authz.ErrUnauthenticated)
		return
	}
	if err := h.users.Delete(c.Request.Context(), principal, principal.UserID); err != nil {
		writeError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), telemetry.LevelWarning, "user deleted own account "+principal.UserID.String(),
		requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}
