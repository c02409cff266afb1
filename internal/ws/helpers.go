package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"

	"messaging-service/internal/observability"
)

const routingKey = "ws_events.conversations"

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// publishWSEvent counts the event and forwards it to the broker.
func publishWSEvent(ctx context.Context, conversationID uuid.UUID, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   info.payload(conversationID, event, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
