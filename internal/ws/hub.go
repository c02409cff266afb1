package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messaging-service/internal/events"
	"messaging-service/internal/models"
)

const writeTimeout = 10 * time.Second

type client struct {
	conn *websocket.Conn
	info ConnInfo
	// gorilla connections support one concurrent writer.
	writeMu sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains the websocket rooms of active conversations.
type Hub struct {
	rooms  map[uuid.UUID]map[*websocket.Conn]*client
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]map[*websocket.Conn]*client),
		logger: logger,
	}
}

// AddClient registers a websocket connection to a conversation room.
func (h *Hub) AddClient(conversationID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[conversationID][conn] = &client{conn: conn, info: info}
}

// RemoveClient removes a websocket connection. It reports whether the connection was registered.
func (h *Hub) RemoveClient(conversationID uuid.UUID, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[conversationID]
	if !ok {
		return false
	}
	_, existed := clients[conn]
	delete(clients, conn)
	if len(clients) == 0 {
		delete(h.rooms, conversationID)
	}
	return existed
}

// Clients returns the number of connections in a conversation room.
func (h *Hub) Clients(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Rooms returns the number of conversations with at least one connection.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Broadcast sends event to the clients of the conversation, dropping clients that fail.
// A non-nil audience limits delivery to those users.
func (h *Hub) Broadcast(ctx context.Context, event models.ConversationEvent, audience []uuid.UUID) {
	allowed := audienceSet(audience)
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[event.ConversationID]))
	for _, cl := range h.rooms[event.ConversationID] {
		if allowed == nil || allowed[cl.info.UserID] {
			clients = append(clients, cl)
		}
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event.Type).Msg("encode websocket event")
		return
	}
	for _, cl := range clients {
		if err := cl.write(payload); err != nil {
			h.logger.Warn().Err(err).
				Str("conversation_id", event.ConversationID.String()).
				Str("conn_id", cl.info.ConnID).
				Msg("websocket write error")
			_ = cl.conn.Close()
			if h.RemoveClient(event.ConversationID, cl.conn) {
				publishWSEvent(ctx, event.ConversationID, cl.info, "ws_error", err.Error())
			}
		}
	}
}

func audienceSet(audience []uuid.UUID) map[uuid.UUID]bool {
	if audience == nil {
		return nil
	}
	set := make(map[uuid.UUID]bool, len(audience))
	for _, id := range audience {
		set[id] = true
	}
	return set
}

// Evict closes the connections of userID in a conversation room. A nil userID evicts everyone.
// It returns the number of closed connections.
func (h *Hub) Evict(ctx context.Context, conversationID uuid.UUID, userID *uuid.UUID, reason string) int {
	h.mu.Lock()
	var evicted []*client
	for conn, cl := range h.rooms[conversationID] {
		if userID == nil || cl.info.UserID == *userID {
			evicted = append(evicted, cl)
			delete(h.rooms[conversationID], conn)
		}
	}
	if len(h.rooms[conversationID]) == 0 {
		delete(h.rooms, conversationID)
	}
	h.mu.Unlock()

	closeFrame := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	for _, cl := range evicted {
		cl.writeMu.Lock()
		_ = cl.conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(writeTimeout))
		cl.writeMu.Unlock()
		_ = cl.conn.Close()
		publishWSEvent(ctx, conversationID, cl.info, "ws_evicted", reason)
	}
	return len(evicted)
}

func (h *Hub) Name() string { return "websocket" }

// Handle relays committed events to the conversation room. Members who leave are disconnected.
func (h *Hub) Handle(ctx context.Context, event events.Event) error {
	switch event.Kind {
	case events.MessageCreated, events.MessageUpdated:
		h.Broadcast(ctx, models.ConversationEvent{
			Type:           string(event.Kind),
			ConversationID: event.ConversationID,
			Message:        event.Message,
		}, event.Participants)
	case events.MessageDeleted:
		for i := range event.MessageIDs {
			id := event.MessageIDs[i]
			h.Broadcast(ctx, models.ConversationEvent{
				Type:           string(event.Kind),
				ConversationID: event.ConversationID,
				MessageID:      &id,
			}, event.Participants)
		}
	case events.ParticipantRemoved:
		if event.UserID != nil {
			h.Evict(ctx, event.ConversationID, event.UserID, "removed from conversation")
		}
	case events.ConversationDeleted:
		h.Evict(ctx, event.ConversationID, nil, "conversation deleted")
	}
	return nil
}
