package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"messaging-service/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.events", "messaging-service", "test", zerolog.Nop())
	emitter.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	userID := "0b8e2f4c-7a2f-4c47-9d0c-0c4f3f0c4a11"
	publisher.On("Publish", mock.Anything, "audit.events", AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    "2024-01-02T03:04:05Z",
		Service:       "messaging-service",
		Environment:   "test",
		RequestID:     "req-9",
		UserID:        &userID,
		Payload:       AuditPayload{Level: LevelInfo, Text: "user deleted"},
	}, map[string]string{"x-request-id": "req-9"}).Return(nil).Once()

	emitter.Emit(context.Background(), LevelInfo, "user deleted", "req-9", &userID)
	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.events", "svc", "test", zerolog.Nop())
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), LevelWarning, "x", "", nil)
	})
	publisher.AssertExpectations(t)
}

func TestEmitNilEmitter(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), LevelInfo, "x", "", nil)
	})
}
