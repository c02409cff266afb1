package ws

import (
	"time"

	"github.com/google/uuid"
)

type ConnInfo struct {
	ConnID      string
	UserID      uuid.UUID
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (info ConnInfo) payload(conversationID uuid.UUID, event, reason string) map[string]interface{} {
	durationMS := int64(0)
	if !info.ConnectedAt.IsZero() {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":            "conversation",
			"conversation_id": conversationID,
			"event":           event,
			"conn_id":         info.ConnID,
			"duration_ms":     durationMS,
			"reason":          reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
