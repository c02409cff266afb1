// Package events delivers committed domain changes to interested listeners.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

type Kind string

const (
	MessageCreated Kind = "message.created"
	MessageUpdated Kind = "message.updated"
	MessageDeleted Kind = "message.deleted"

	ParticipantRemoved  Kind = "participant.removed"
	ConversationDeleted Kind = "conversation.deleted"
)

// Subject is the entity the kind is about, e.g. "message" for MessageCreated.
func (k Kind) Subject() string {
	subject, _, _ := strings.Cut(string(k), ".")
	return subject
}

// Event describes a change that has already been committed.
type Event struct {
	Kind           Kind            `json:"kind"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Message        *models.Message `json:"message,omitempty"`
	// MessageIDs lists every removed message for MessageDeleted.
	MessageIDs []uuid.UUID `json:"message_ids,omitempty"`
	// UserID is the member that left for ParticipantRemoved.
	UserID *uuid.UUID `json:"user_id,omitempty"`
	// Participants is the membership after the change. Only they may observe it;
	// nil leaves the audience unrestricted.
	Participants []uuid.UUID `json:"participants,omitempty"`
	ActorID      uuid.UUID   `json:"actor_id"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// Listener reacts to events. Returned errors are logged and never reach the caller of Dispatch.
type Listener interface {
	Name() string
	Handle(ctx context.Context, event Event) error
}

// ListenerFunc adapts a function into a Listener.
type ListenerFunc struct {
	ListenerName string
	Fn           func(ctx context.Context, event Event) error
}

func (f ListenerFunc) Name() string { return f.ListenerName }

func (f ListenerFunc) Handle(ctx context.Context, event Event) error { return f.Fn(ctx, event) }

// Dispatcher fans events out to listeners.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
	async     bool
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher builds a Dispatcher. With async set, listeners run on their own goroutine
// and Dispatch returns immediately.
func NewDispatcher(logger zerolog.Logger, async bool) *Dispatcher {
	return &Dispatcher{async: async, logger: logger}
}

// Subscribe registers a listener for every event.
func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Dispatch delivers events to all listeners. It never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, evts ...Event) {
	if d == nil || len(evts) == 0 {
		return
	}
	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.RUnlock()

	if !d.async {
		d.deliver(ctx, listeners, evts)
		return
	}

	// the request context is cancelled once the handler returns
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(detached, listeners, evts)
	}()
}

// Wait blocks until in-flight asynchronous deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, listeners []Listener, evts []Event) {
	for _, evt := range evts {
		for _, l := range listeners {
			if err := d.safeHandle(ctx, l, evt); err != nil {
				observability.IncSideEffectFailure(l.Name())
				d.logger.Warn().Err(err).
					Str("event", string(evt.Kind)).
					Str("listener", l.Name()).
					Str("conversation_id", evt.ConversationID.String()).
					Msg("event listener failed")
			}
		}
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, l Listener, evt Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	return l.Handle(ctx, evt)
}
