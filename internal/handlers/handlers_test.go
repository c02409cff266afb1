package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/authz"
	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
)

var alice = &authz.Principal{UserID: uuid.MustParse("7d3f1b8e-5c1a-4b8e-9a55-1c7c1b0f2a01"), Username: "alice"}

type testDeps struct {
	users         *mocks.UserServiceMock
	conversations *mocks.ConversationServiceMock
	messages      *mocks.MessageServiceMock
	notifications *mocks.NotificationServiceMock
	tokens        *mocks.TokenIssuerMock
	publisher     *mocks.PublisherMock
}

func setupRouter(principal *authz.Principal) (*gin.Engine, testDeps) {
	gin.SetMode(gin.TestMode)
	d := testDeps{
		users:         new(mocks.UserServiceMock),
		conversations: new(mocks.ConversationServiceMock),
		messages:      new(mocks.MessageServiceMock),
		notifications: new(mocks.NotificationServiceMock),
		tokens:        new(mocks.TokenIssuerMock),
		publisher:     new(mocks.PublisherMock),
	}
	audit := telemetry.NewAuditEmitter(d.publisher, "audit.events", "messaging-service", "test", zerolog.Nop())

	authHandler := NewAuthHandler(d.users, d.tokens)
	userHandler := NewUserHandler(d.users, audit)
	convHandler := NewConversationHandler(d.conversations, d.messages)
	msgHandler := NewMessageHandler(d.messages)
	notifHandler := NewNotificationHandler(d.notifications)
	adminHandler := NewAdminHandler(d.users, audit)

	r := gin.New()
	r.POST("/auth/login", authHandler.Login)
	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/refresh", authHandler.Refresh)

	api := r.Group("/", func(c *gin.Context) {
		if principal != nil {
			middleware.SetPrincipal(c, principal)
		}
		c.Next()
	})
	api.DELETE("/users/me", userHandler.DeleteMe)
	api.GET("/users/:user_id", userHandler.Get)
	api.GET("/conversations", convHandler.List)
	api.POST("/conversations", convHandler.Create)
	api.DELETE("/conversations/:conversation_id/participants/:user_id", convHandler.RemoveParticipant)
	api.GET("/conversations/:conversation_id/messages", convHandler.ListMessages)
	api.POST("/conversations/:conversation_id/messages", convHandler.CreateMessage)
	api.GET("/messages", msgHandler.List)
	api.POST("/messages", msgHandler.Create)
	api.PATCH("/messages/:message_id", msgHandler.Update)
	api.DELETE("/messages/:message_id", msgHandler.Delete)
	api.GET("/notifications", notifHandler.List)
	api.PUT("/admin/users/:user_id/role", adminHandler.SetRole)
	return r, d
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{authz.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{authz.ErrNotParticipant, http.StatusForbidden, "not_participant"},
		{authz.ErrNotSender, http.StatusForbidden, "not_sender"},
		{authz.ErrNotReceiver, http.StatusForbidden, "not_receiver"},
		{authz.ErrRoleRequired, http.StatusForbidden, "role_required"},
		{authz.ErrAdminRequired, http.StatusForbidden, "role_required"},
		{repositories.ErrConversationNotFound, http.StatusNotFound, "not_found"},
		{repositories.ErrMessageNotFound, http.StatusNotFound, "not_found"},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{&services.ValidationError{Fields: map[string]string{"message_body": "required"}}, http.StatusBadRequest, "invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			writeError(c, tc.err)
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeBody(t, rec)["code"])
		})
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(c, assert.AnError)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeBody(t, rec)["error"])
}

func TestLoginSuccess(t *testing.T) {
	router, d := setupRouter(nil)
	user := models.User{ID: alice.UserID, Username: "alice"}
	pair := auth.TokenPair{Access: "a", Refresh: "r"}
	d.users.On("Authenticate", mock.Anything, "alice", "pw123456").Return(user, nil).Once()
	d.tokens.On("Issue", alice.UserID).Return(pair, nil).Once()

	rec := do(router, http.MethodPost, "/auth/login", `{"username":"alice","password":"pw123456"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "a", body["access"])
	assert.Equal(t, "r", body["refresh"])
	assert.Equal(t, alice.UserID.String(), body["user_id"])
	d.users.AssertExpectations(t)
	d.tokens.AssertExpectations(t)
}

func TestLoginBadCredentials(t *testing.T) {
	router, d := setupRouter(nil)
	d.users.On("Authenticate", mock.Anything, "alice", "wrong").Return(nil, services.ErrInvalidCredentials).Once()

	rec := do(router, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	d.tokens.AssertNotCalled(t, "Issue", mock.Anything)
}

func TestRegisterValidation(t *testing.T) {
	router, d := setupRouter(nil)
	in := services.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "password1", PasswordConfirm: "password2"}
	d.users.On("Register", mock.Anything, in).
		Return(nil, &services.ValidationError{Fields: map[string]string{"password_confirm": "passwords do not match"}}).Once()

	rec := do(router, http.MethodPost, "/auth/register",
		`{"username":"bob","email":"bob@example.com","password":"password1","password_confirm":"password2"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody(t, rec)["fields"].(map[string]any)
	assert.Equal(t, "passwords do not match", fields["password_confirm"])
}

func TestRefreshInvalidToken(t *testing.T) {
	router, d := setupRouter(nil)
	d.tokens.On("Refresh", "bad").Return(uuid.Nil, nil, auth.ErrInvalidToken).Once()

	rec := do(router, http.MethodPost, "/auth/refresh", `{"refresh":"bad"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateConversation(t *testing.T) {
	router, d := setupRouter(alice)
	bob := uuid.New()
	conv := models.ConversationSummary{Conversation: models.Conversation{ID: uuid.New(), Participants: []uuid.UUID{alice.UserID, bob}}}
	d.conversations.On("Create", mock.Anything, alice, []uuid.UUID{bob}).Return(conv, nil).Once()

	rec := do(router, http.MethodPost, "/conversations", `{"participants":["`+bob.String()+`"]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, conv.ID.String(), decodeBody(t, rec)["conversation_id"])
	d.conversations.AssertExpectations(t)
}

func TestListConversationsUnauthenticated(t *testing.T) {
	router, d := setupRouter(nil)
	d.conversations.On("ListFor", mock.Anything, (*authz.Principal)(nil)).Return(nil, authz.ErrUnauthenticated).Once()

	rec := do(router, http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRemoveLastParticipantDeletesConversation(t *testing.T) {
	router, d := setupRouter(alice)
	convID := uuid.New()
	d.conversations.On("RemoveParticipant", mock.Anything, alice, convID, alice.UserID).
		Return(models.ConversationSummary{Conversation: models.Conversation{ID: convID, Participants: []uuid.UUID{}}}, nil).Once()

	rec := do(router, http.MethodDelete, "/conversations/"+convID.String()+"/participants/"+alice.UserID.String(), "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListConversationMessagesPaginates(t *testing.T) {
	router, d := setupRouter(alice)
	convID := uuid.New()
	sender := uuid.New()
	expected := models.MessageFilter{SenderID: &sender, Limit: 5, Offset: 5}
	d.messages.On("List", mock.Anything, alice, convID, expected).
		Return([]models.Message{{ID: uuid.New(), ConversationID: convID, Body: "hi"}}, 6, nil).Once()

	rec := do(router, http.MethodGet, "/conversations/"+convID.String()+"/messages?page=2&page_size=5&sender_id="+sender.String(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(6), body["count"])
	assert.Equal(t, float64(2), body["page"])
	assert.Len(t, body["results"], 1)
	d.messages.AssertExpectations(t)
}

func TestListMessagesDateFilter(t *testing.T) {
	router, d := setupRouter(alice)
	d.messages.On("ListForUser", mock.Anything, alice, mock.MatchedBy(func(f models.MessageFilter) bool {
		return f.Since != nil && f.Since.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) &&
			f.Until != nil && f.Until.Equal(time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC)) &&
			f.Limit == defaultPageSize && f.Offset == 0
	})).Return(nil, 0, nil).Once()

	rec := do(router, http.MethodGet, "/messages?start_date=2024-01-01&end_date=2024-01-31", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["results"])
	d.messages.AssertExpectations(t)
}

func TestListMessagesRejectsBadFilter(t *testing.T) {
	router, d := setupRouter(alice)

	rec := do(router, http.MethodGet, "/messages?sender_id=nope", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.messages.AssertNotCalled(t, "ListForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesRejectsHugePage(t *testing.T) {
	router, d := setupRouter(alice)

	rec := do(router, http.MethodGet, "/messages?page=9223372036854775807&page_size=100", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid", body["code"])
	assert.Contains(t, body["fields"], "page")
	d.messages.AssertNotCalled(t, "ListForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateFlatMessageRequiresConversation(t *testing.T) {
	router, d := setupRouter(alice)

	rec := do(router, http.MethodPost, "/messages", `{"message_body":"hello"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "conversation")
	d.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateNestedMessage(t *testing.T) {
	router, d := setupRouter(alice)
	convID := uuid.New()
	in := services.CreateMessageInput{ConversationID: convID, Body: "hello"}
	msg := models.Message{ID: uuid.New(), ConversationID: convID, SenderID: alice.UserID, Body: "hello"}
	d.messages.On("Create", mock.Anything, alice, in).Return(msg, nil).Once()

	rec := do(router, http.MethodPost, "/conversations/"+convID.String()+"/messages", `{"message_body":"hello","sender":"`+uuid.NewString()+`"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, alice.UserID.String(), decodeBody(t, rec)["sender"])
	d.messages.AssertExpectations(t)
}

func TestCreateMessageNotParticipant(t *testing.T) {
	router, d := setupRouter(alice)
	convID := uuid.New()
	d.messages.On("Create", mock.Anything, alice, mock.Anything).Return(nil, authz.ErrNotParticipant).Once()

	rec := do(router, http.MethodPost, "/messages", `{"conversation":"`+convID.String()+`","message_body":"x"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_participant", decodeBody(t, rec)["code"])
}

func TestUpdateMessageNotSender(t *testing.T) {
	router, d := setupRouter(alice)
	msgID := uuid.New()
	d.messages.On("Update", mock.Anything, alice, msgID, "edited").Return(nil, authz.ErrNotSender).Once()

	rec := do(router, http.MethodPatch, "/messages/"+msgID.String(), `{"message_body":"edited"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_sender", decodeBody(t, rec)["code"])
}

func TestDeleteMessage(t *testing.T) {
	router, d := setupRouter(alice)
	msgID := uuid.New()
	d.messages.On("Delete", mock.Anything, alice, msgID).Return(nil).Once()

	rec := do(router, http.MethodDelete, "/messages/"+msgID.String(), "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	d.messages.AssertExpectations(t)
}

func TestMalformedIDIsNotFound(t *testing.T) {
	router, _ := setupRouter(alice)

	rec := do(router, http.MethodDelete, "/messages/not-a-uuid", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUnseenNotifications(t *testing.T) {
	router, d := setupRouter(alice)
	d.notifications.On("List", mock.Anything, alice, true).Return([]models.Notification{{ID: uuid.New()}}, nil).Once()

	rec := do(router, http.MethodGet, "/notifications?unseen=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	d.notifications.AssertExpectations(t)
}

func TestDeleteMeEmitsAudit(t *testing.T) {
	router, d := setupRouter(alice)
	d.users.On("Delete", mock.Anything, alice, alice.UserID).Return(nil).Once()
	d.publisher.On("Publish", mock.Anything, "audit.events", mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).Return(nil).Once()

	rec := do(router, http.MethodDelete, "/users/me", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	d.users.AssertExpectations(t)
	d.publisher.AssertExpectations(t)
}

func TestGetUserNotFound(t *testing.T) {
	router, d := setupRouter(alice)
	id := uuid.New()
	d.users.On("Get", mock.Anything, alice, id).Return(nil, repositories.ErrUserNotFound).Once()

	rec := do(router, http.MethodGet, "/users/"+id.String(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetRoleForbidden(t *testing.T) {
	router, d := setupRouter(alice)
	id := uuid.New()
	update := services.RoleUpdate{Role: models.RoleHost, Groups: []string{"moderator"}}
	d.users.On("SetRole", mock.Anything, alice, id, update).Return(nil, authz.ErrRoleRequired).Once()

	rec := do(router, http.MethodPut, "/admin/users/"+id.String()+"/role", `{"role":"host","groups":["moderator"]}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "role_required", decodeBody(t, rec)["code"])
	d.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type fixedRooms int

func (r fixedRooms) Rooms() int { return int(r) }

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.events", "messaging-service", "test", zerolog.Nop())

	disabled := gin.New()
	DebugRoutes{Audit: audit}.Register(disabled, false)
	assert.Equal(t, http.StatusNotFound, do(disabled, http.MethodGet, "/debug/pipeline", "").Code)

	r := gin.New()
	DebugRoutes{Audit: audit, Sockets: fixedRooms(3), PublisherMode: "noop"}.Register(r, true)

	rec := do(r, http.MethodGet, "/debug/pipeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "noop", body["publisher"])
	assert.Equal(t, float64(3), body["socket_rooms"])
	assert.Equal(t, true, body["audit"])

	publisher.On("Publish", mock.Anything, "audit.events", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Level == telemetry.LevelWarning && env.Payload.Text == "messaging debug: hello"
	}), mock.Anything).Return(nil).Once()
	rec = do(r, http.MethodPost, "/debug/audit?level=warning&note=hello", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", decodeBody(t, rec)["status"])
	publisher.AssertExpectations(t)

	unconfigured := gin.New()
	DebugRoutes{}.Register(unconfigured, true)
	assert.Equal(t, http.StatusServiceUnavailable, do(unconfigured, http.MethodPost, "/debug/audit", "").Code)
}
