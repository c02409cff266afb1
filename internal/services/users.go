package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"messaging-service/internal/authz"
	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

const minPasswordLength = 8

// RegisterInput is a self-service sign-up request.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
}

// RoleUpdate assigns the coarse role, staff flag and groups of a user.
type RoleUpdate struct {
	Role    models.Role
	IsStaff bool
	Groups  []string
}

// UserService manages accounts and their removal.
type UserService struct {
	deps Deps
}

func NewUserService(deps Deps) *UserService {
	return &UserService{deps: deps}
}

// Register creates an active guest account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	fields := map[string]string{}
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" {
		fields["username"] = "this field is required"
	}
	if _, err := mail.ParseAddress(email); email == "" || err != nil {
		fields["email"] = "enter a valid email address"
	}
	if len(in.Password) < minPasswordLength {
		fields["password"] = "password must be at least 8 characters"
	} else if in.Password != in.PasswordConfirm {
		fields["password_confirm"] = "passwords do not match"
	}
	if len(fields) > 0 {
		return models.User{}, &ValidationError{Fields: fields}
	}

	return s.create(ctx, models.User{
		Username:  username,
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      models.RoleGuest,
		IsActive:  true,
	}, in.Password)
}

func (s *UserService) create(ctx context.Context, user models.User, password string) (models.User, error) {
	cost := s.deps.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = string(hash)
	user.CreatedAt = s.deps.now()
	if user.Groups == nil {
		user.Groups = []string{}
	}

	if err := s.deps.Store.Users().CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return models.User{}, invalid("username", "a user with that username or email already exists")
		}
		return models.User{}, err
	}
	s.deps.Logger.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("user registered")
	return user, nil
}

// Authenticate verifies a username and password.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.deps.Store.Users().GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Principal resolves the identity behind a verified token subject.
func (s *UserService) Principal(ctx context.Context, userID uuid.UUID) (*authz.Principal, error) {
	user, err := s.deps.Store.Users().GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, authz.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, authz.ErrUnauthenticated
	}
	return authz.PrincipalFromUser(user), nil
}

// List returns active users.
func (s *UserService) List(ctx context.Context, p *authz.Principal) ([]models.User, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	return s.deps.Store.Users().ListUsers(ctx, true)
}

// ListAll returns every user, active or not. Role-gated.
func (s *UserService) ListAll(ctx context.Context, p *authz.Principal) ([]models.User, error) {
	if err := authz.RequireRole(p); err != nil {
		return nil, err
	}
	return s.deps.Store.Users().ListUsers(ctx, false)
}

func (s *UserService) Get(ctx context.Context, p *authz.Principal, userID uuid.UUID) (models.User, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.User{}, err
	}
	return s.deps.Store.Users().GetUser(ctx, userID)
}

// Delete removes a user and everything derived from them. Users may delete themselves;
// deleting someone else is role-gated.
func (s *UserService) Delete(ctx context.Context, p *authz.Principal, userID uuid.UUID) error {
	if err := authz.RequireAuthenticated(p); err != nil {
		return err
	}
	if p.UserID != userID {
		if err := authz.RequireRole(p); err != nil {
			return err
		}
	}
	ctx, span := startSpan(ctx, "user.delete")
	defer span.End()

	var (
		removed int
		evts    []events.Event
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		if _, err := tx.Users().GetUser(ctx, userID); err != nil {
			return err
		}
		memberOf, err := tx.Conversations().ListConversationsForUser(ctx, userID)
		if err != nil {
			return err
		}
		owned, err := tx.Messages().MessagesOfUser(ctx, userID)
		if err != nil {
			return err
		}
		removed = len(owned)
		ids := make([]uuid.UUID, 0, len(owned))
		for _, m := range owned {
			ids = append(ids, m.ID)
		}
		if err := deleteMessages(ctx, tx, ids); err != nil {
			return err
		}
		if err := tx.Notifications().DeleteNotificationsForUser(ctx, userID); err != nil {
			return err
		}
		if err := tx.Messages().ClearEditor(ctx, userID); err != nil {
			return err
		}
		if err := tx.Histories().ClearHistoryEditor(ctx, userID); err != nil {
			return err
		}
		if err := tx.Conversations().RemoveUserFromAll(ctx, userID); err != nil {
			return err
		}
		if err := tx.Conversations().DeleteEmptyConversations(ctx); err != nil {
			return err
		}
		if err := tx.Users().DeleteUser(ctx, userID); err != nil {
			return err
		}
		evts, err = s.deletionEvents(ctx, tx, p.UserID, userID, memberOf, owned)
		return err
	})
	if err != nil {
		return err
	}
	s.deps.dispatch(ctx, evts...)
	s.deps.Logger.Info().
		Str("user_id", userID.String()).
		Str("actor_id", p.UserID.String()).
		Int("messages_removed", removed).
		Msg("user deleted")
	return nil
}

// deletionEvents reports the messages removed with a user, grouped by conversation, and the
// user's departure from every conversation they belonged to.
func (s *UserService) deletionEvents(ctx context.Context, tx repositories.Store, actorID, userID uuid.UUID, memberOf []models.Conversation, owned []models.Message) ([]events.Event, error) {
	now := s.deps.now()
	remaining := map[uuid.UUID][]uuid.UUID{}
	participantsOf := func(conversationID uuid.UUID) ([]uuid.UUID, error) {
		if ids, ok := remaining[conversationID]; ok {
			return ids, nil
		}
		conv, err := tx.Conversations().GetConversation(ctx, conversationID)
		switch {
		case errors.Is(err, repositories.ErrConversationNotFound):
			remaining[conversationID] = []uuid.UUID{}
		case err != nil:
			return nil, err
		default:
			remaining[conversationID] = conv.Participants
		}
		return remaining[conversationID], nil
	}

	var (
		evts   []events.Event
		order  []uuid.UUID
		byConv = map[uuid.UUID][]uuid.UUID{}
	)
	for _, m := range owned {
		if _, ok := byConv[m.ConversationID]; !ok {
			order = append(order, m.ConversationID)
		}
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m.ID)
	}
	for _, conversationID := range order {
		participants, err := participantsOf(conversationID)
		if err != nil {
			return nil, err
		}
		evts = append(evts, events.Event{
			Kind:           events.MessageDeleted,
			ConversationID: conversationID,
			MessageIDs:     byConv[conversationID],
			Participants:   participants,
			ActorID:        actorID,
			OccurredAt:     now,
		})
	}
	for _, conv := range memberOf {
		participants, err := participantsOf(conv.ID)
		if err != nil {
			return nil, err
		}
		evts = append(evts, departureEvents(conv.ID, userID, participants, actorID, now)...)
	}
	return evts, nil
}

// SetRole changes the role, staff flag and groups of a user. Moderators may not grant roles.
func (s *UserService) SetRole(ctx context.Context, p *authz.Principal, userID uuid.UUID, update RoleUpdate) (models.User, error) {
	if err := authz.RequireAdmin(p); err != nil {
		return models.User{}, err
	}
	if !update.Role.Valid() {
		return models.User{}, invalid("role", "must be one of guest, host, admin")
	}
	groups := make([]string, 0, len(update.Groups))
	for _, g := range update.Groups {
		if g = strings.ToLower(strings.TrimSpace(g)); g != "" {
			groups = append(groups, g)
		}
	}

	var user models.User
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		if err := tx.Users().UpdateUserRole(ctx, userID, update.Role, update.IsStaff, groups); err != nil {
			return err
		}
		var err error
		user, err = tx.Users().GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return models.User{}, err
	}
	s.deps.Logger.Info().Str("user_id", userID.String()).Str("role", string(update.Role)).Strs("groups", groups).Msg("user role updated")
	return user, nil
}

// SeedResult reports what SeedRoles did for one account.
type SeedResult struct {
	Username string
	Created  bool
}

// SeedRoles creates the demo admin, moderator and regular accounts. Existing accounts are skipped.
func (s *UserService) SeedRoles(ctx context.Context, password string) ([]SeedResult, error) {
	seeds := []models.User{
		{Username: "admin_user", Email: "admin@example.com", Role: models.RoleAdmin, IsStaff: true, Groups: []string{models.GroupAdmin}},
		{Username: "mod_user", Email: "mod@example.com", Role: models.RoleHost, Groups: []string{models.GroupModerator}},
		{Username: "regular_user", Email: "user@example.com", Role: models.RoleGuest},
	}

	results := make([]SeedResult, 0, len(seeds))
	for _, seed := range seeds {
		_, err := s.deps.Store.Users().GetUserByUsername(ctx, seed.Username)
		if err == nil {
			s.deps.Logger.Warn().Str("username", seed.Username).Msg("user already exists, skipping")
			results = append(results, SeedResult{Username: seed.Username})
			continue
		}
		if !errors.Is(err, repositories.ErrUserNotFound) {
			return results, err
		}
		seed.IsActive = true
		if _, err := s.create(ctx, seed, password); err != nil {
			return results, err
		}
		results = append(results, SeedResult{Username: seed.Username, Created: true})
	}
	return results, nil
}
