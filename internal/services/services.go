// Package services holds the conversation, message, user and notification use cases.
// Every state change runs in one store transaction; events are dispatched after commit.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/events"
	"messaging-service/internal/repositories"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// ValidationError carries field-level messages for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// EventSink receives committed events.
type EventSink interface {
	Dispatch(ctx context.Context, evts ...events.Event)
}

// Deps are the collaborators shared by the services.
type Deps struct {
	Store  repositories.Store
	Events EventSink
	Logger zerolog.Logger
	// Now defaults to time.Now in UTC.
	Now func() time.Time
	// PasswordCost is the bcrypt cost; zero selects bcrypt.DefaultCost.
	PasswordCost int
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) dispatch(ctx context.Context, evts ...events.Event) {
	if d.Events == nil {
		return
	}
	d.Events.Dispatch(ctx, evts...)
}

var tracer = otel.Tracer("messaging-service/services")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

func dedupIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
