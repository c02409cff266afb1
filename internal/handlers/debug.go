package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/telemetry"
)

// SocketRooms reports how many conversations have live websocket clients.
type SocketRooms interface {
	Rooms() int
}

// DebugRoutes exposes the delivery pipeline for operators when DEBUG_ROUTES is on.
type DebugRoutes struct {
	Audit         *telemetry.AuditEmitter
	Sockets       SocketRooms
	PublisherMode string
}

// Register mounts /debug/pipeline and /debug/audit. Nothing is mounted unless enabled.
func (d DebugRoutes) Register(router gin.IRouter, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")
	debug.GET("/pipeline", d.pipeline)
	debug.POST("/audit", d.emitAudit)
}

func (d DebugRoutes) pipeline(c *gin.Context) {
	rooms := 0
	if d.Sockets != nil {
		rooms = d.Sockets.Rooms()
	}
	c.JSON(http.StatusOK, gin.H{
		"publisher":    d.PublisherMode,
		"audit":        d.Audit != nil,
		"socket_rooms": rooms,
	})
}

// emitAudit sends a marker record through the audit pipeline so operators can trace it downstream.
func (d DebugRoutes) emitAudit(c *gin.Context) {
	if d.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit pipeline not configured", "code": "unavailable"})
		return
	}
	level := telemetry.LevelInfo
	if strings.EqualFold(c.Query("level"), "warning") {
		level = telemetry.LevelWarning
	}
	note := strings.TrimSpace(c.Query("note"))
	if note == "" {
		note = "pipeline check"
	}
	requestID := requestIDFromContext(c)
	d.Audit.Emit(c.Request.Context(), level, "messaging debug: "+note, requestID, userIDFromContext(c))
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "level": level, "request_id": requestID})
}
