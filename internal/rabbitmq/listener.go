package rabbitmq

import (
	"context"

	"messaging-service/internal/events"
	"messaging-service/internal/observability"
)

// RoutingKeyPrefix namespaces conversation events on the exchange.
const RoutingKeyPrefix = "chat."

// EventListener forwards committed conversation events to the broker.
type EventListener struct {
	publisher observability.Publisher
}

func NewEventListener(publisher observability.Publisher) *EventListener {
	return &EventListener{publisher: publisher}
}

func (l *EventListener) Name() string { return "amqp" }

func (l *EventListener) Handle(ctx context.Context, event events.Event) error {
	envelope := observability.EventEnvelope{
		EventType: event.Kind.Subject(),
		EventName: string(event.Kind),
		Payload:   event,
	}
	headers := observability.BuildHeaders(
		observability.RequestIDFromContext(ctx),
		observability.TraceIDFromContext(ctx),
	)

	err := l.publisher.Publish(ctx, RoutingKeyPrefix+string(event.Kind), envelope, headers)
	if err != nil {
		observability.IncAMQPPublishError()
	}
	return err
}
