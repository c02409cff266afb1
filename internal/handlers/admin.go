package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
)

// AdminHandler serves role-gated user management. Every change is audited.
type AdminHandler struct {
	users UserService
	audit *telemetry.AuditEmitter
}

func NewAdminHandler(users UserService, audit *telemetry.AuditEmitter) *AdminHandler {
	return &AdminHandler{users: users, audit: audit}
}

type roleRequest struct {
	Role    models.Role `json:"role" binding:"required"`
	IsStaff bool        `json:"is_staff"`
	Groups  []string    `json:"groups"`
}

// ListUsers returns every account, including inactive ones.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListAll(c.Request.Context(), middleware.PrincipalFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role", "this field is required")
		return
	}
	user, err := h.users.SetRole(c.Request.Context(), middleware.PrincipalFromContext(c), userID, services.RoleUpdate{
		Role:    req.Role,
		IsStaff: req.IsStaff,
		Groups:  req.Groups,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo,
		fmt.Sprintf("role of %s set to %s groups=%v staff=%t", user.ID, user.Role, []string(user.Groups), user.IsStaff),
		requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusOK, user)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), middleware.PrincipalFromContext(c), userID); err != nil {
		writeError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), telemetry.LevelWarning, "user deleted "+userID.String(),
		requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}
