package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
)

type NotificationHandler struct {
	notifications NotificationService
}

func NewNotificationHandler(notifications NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the caller's notifications, optionally only unseen ones.
func (h *NotificationHandler) List(c *gin.Context) {
	unseen := c.Query("unseen") == "true"
	notifications, err := h.notifications.List(c.Request.Context(), middleware.PrincipalFromContext(c), unseen)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *NotificationHandler) MarkSeen(c *gin.Context) {
	notificationID, ok := uuidParam(c, "notification_id")
	if !ok {
		return
	}
	if err := h.notifications.MarkSeen(c.Request.Context(), middleware.PrincipalFromContext(c), notificationID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
