package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/config"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/ratelimit"
	"messaging-service/internal/repositories/memory"
)

func newTestRouter(t *testing.T, now time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		StoreDriver:       config.StoreDriverMemory,
		JWTSecret:         "test-secret",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   24 * time.Hour,
		RateLimitMessages: 5,
		RateLimitWindow:   time.Minute,
		LoginRPS:          100,
		LoginBurst:        100,
		ChatHoursEnabled:  true,
		ChatOpenHour:      6,
		ChatCloseHour:     21,
		Timezone:          "UTC",
		ServiceName:       "messaging-service",
		Environment:       "test",
	}
	logger := zerolog.Nop()
	app := newApplication(cfg, logger, memory.NewStore(), rabbitmq.NewPublisher("", "", logger),
		ratelimit.NewSlidingWindow(cfg.RateLimitMessages, cfg.RateLimitWindow))
	app.now = func() time.Time { return now }

	router, err := newRouter(app)
	require.NoError(t, err)
	return router
}

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func (c *client) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	return c.doWithHeaders(method, path, body, nil)
}

func (c *client) doWithHeaders(method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:5555"
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func register(t *testing.T, router *gin.Engine, username string) (*client, string) {
	t.Helper()
	c := &client{t: t, router: router}
	rec, body := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "s3cret-pass",
		"password_confirm": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, body = c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c.token = body["access"].(string)
	return c, body["user_id"].(string)
}

func TestConversationFlow(t *testing.T) {
	router := newTestRouter(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	alice, _ := register(t, router, "alice")
	bob, bobID := register(t, router, "bob")
	carol, _ := register(t, router, "carol")

	rec, conv := alice.do(http.MethodPost, "/api/chats/conversations", map[string]any{"participants": []string{bobID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	convID := conv["conversation_id"].(string)

	for i := 0; i < 5; i++ {
		rec, _ = alice.do(http.MethodPost, "/api/chats/messages", map[string]any{"conversation": convID, "message_body": "hi"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec, body := alice.do(http.MethodPost, "/api/chats/messages", map[string]any{"conversation": convID, "message_body": "one too many"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60 seconds", body["retry_after"])

	rec, page := bob.do(http.MethodGet, "/api/chats/conversations/"+convID+"/messages?page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), page["count"])
	assert.Len(t, page["results"], 2)

	rec, _ = bob.do(http.MethodGet, "/api/chats/notifications?unseen=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifications []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notifications))
	assert.Len(t, notifications, 5)

	rec, body = carol.do(http.MethodGet, "/api/chats/conversations/"+convID+"/messages", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_participant", body["code"])

	rec, body = carol.do(http.MethodGet, "/api/admin/users", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "role_required", body["code"])
}

func TestUnauthenticatedChatRequest(t *testing.T) {
	router := newTestRouter(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	anon := &client{t: t, router: router}

	rec, _ := anon.do(http.MethodGet, "/api/chats/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatRoutesClosedAtNight(t *testing.T) {
	router := newTestRouter(t, time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC))
	alice, _ := register(t, router, "alice")

	rec, body := alice.do(http.MethodGet, "/api/chats/conversations", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "restricted_hours", body["code"])
	assert.Equal(t, "22:30:00", body["current_time"])

	rec, _ = alice.do(http.MethodGet, "/api/users", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, time.Now())
	anon := &client{t: t, router: router}

	rec, body := anon.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = anon.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "messaging_http_requests_total")
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	router := newTestRouter(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	alice, _ := register(t, router, "alice")
	_, bobID := register(t, router, "bob")

	rec, conv := alice.do(http.MethodPost, "/api/chats/conversations", map[string]any{"participants": []string{bobID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	convID := conv["conversation_id"].(string)

	for i := 0; i < 5; i++ {
		rec, _ = alice.doWithHeaders(http.MethodPost, "/api/chats/messages",
			map[string]any{"conversation": convID, "message_body": "hi"},
			map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec, _ = alice.doWithHeaders(http.MethodPost, "/api/chats/messages",
		map[string]any{"conversation": convID, "message_body": "rotated"},
		map[string]string{"X-Forwarded-For": "203.0.113.99"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRemovedParticipantLosesSocketStream(t *testing.T) {
	router := newTestRouter(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	alice, _ := register(t, router, "alice")
	_, bobID := register(t, router, "bob")
	carol, carolID := register(t, router, "carol")

	rec, conv := alice.do(http.MethodPost, "/api/chats/conversations", map[string]any{"participants": []string{bobID, carolID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	convID := conv["conversation_id"].(string)

	socketURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/conversations/" + convID + "?token=" + carol.token
	socket, _, err := websocket.DefaultDialer.Dial(socketURL, nil)
	require.NoError(t, err)
	defer socket.Close()

	rec, _ = alice.do(http.MethodDelete, "/api/chats/conversations/"+convID+"/participants/"+carolID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, _ = alice.do(http.MethodPost, "/api/chats/messages", map[string]any{"conversation": convID, "message_body": "after carol left"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = carol.do(http.MethodGet, "/api/chats/conversations/"+convID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, socket.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := socket.ReadMessage()
	require.Error(t, err, "unexpected frame %s", payload)
	assert.NotContains(t, string(payload), "after carol left")
}
