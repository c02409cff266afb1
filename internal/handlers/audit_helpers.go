package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(observability.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader(observability.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if p := middleware.PrincipalFromContext(c); p != nil && p.UserID != uuid.Nil {
		id := p.UserID.String()
		return &id
	}
	return nil
}
