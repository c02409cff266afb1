package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"messaging-service/internal/observability"
)

// Audit levels.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
)

type AuditEmitter struct {
	publisher   observability.Publisher
	routingKey  string
	service     string
	environment string
	logger      zerolog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher observability.Publisher, routingKey, service, environment string, logger zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
		now:         time.Now,
	}
}

// Emit publishes an audit record. Failures are logged and never returned.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}

	logEvent := e.logger.Info().Str("level", level).Str("request_id", requestID)
	if userID != nil {
		logEvent = logEvent.Str("user_id", *userID)
	}
	logEvent.Str("text", text).Msg("audit emit")

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level: level,
			Text:  text,
		},
	}

	headers := observability.BuildHeaders(requestID, observability.TraceIDFromContext(ctx))
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		observability.IncAMQPPublishError()
		e.logger.Warn().Err(err).Str("request_id", requestID).Msg("audit publish failed")
	}
}
