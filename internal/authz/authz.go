// Package authz decides whether a principal may act on a conversation or a message.
//
// Authentication is always checked first; membership and ownership checks only run for an
// authenticated principal.
package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"messaging-service/internal/models"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrNotParticipant  = errors.New("forbidden: not a participant of this conversation")
	ErrNotSender       = errors.New("forbidden: only the sender can modify this message")
	ErrNotReceiver     = errors.New("forbidden: only the receiver can mark this message as read")
	ErrRoleRequired    = errors.New("forbidden: role required")
	// ErrAdminRequired wraps ErrRoleRequired.
	ErrAdminRequired = fmt.Errorf("%w: admin", ErrRoleRequired)
)

// IsForbidden reports whether err denies an authenticated principal.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrNotSender) ||
		errors.Is(err, ErrNotReceiver) || errors.Is(err, ErrRoleRequired)
}

// PrivilegedGroups grant access to role-gated endpoints.
var PrivilegedGroups = []string{models.GroupAdmin, models.GroupModerator}

// Principal is the authenticated identity making a request.
type Principal struct {
	UserID      uuid.UUID
	Username    string
	Role        models.Role
	IsStaff     bool
	IsSuperuser bool
	Groups      []string
}

// PrincipalFromUser builds the principal for a stored user.
func PrincipalFromUser(u models.User) *Principal {
	return &Principal{
		UserID:      u.ID,
		Username:    u.Username,
		Role:        u.Role,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		Groups:      append([]string(nil), u.Groups...),
	}
}

// RoleName describes the principal's effective role for error responses.
func (p *Principal) RoleName() string {
	switch {
	case p == nil:
		return "anonymous"
	case p.IsSuperuser:
		return "superuser"
	case p.IsStaff:
		return "staff"
	case len(p.Groups) > 0:
		return p.Groups[0]
	case p.Role != "":
		return string(p.Role)
	}
	return "regular_user"
}

func authenticated(p *Principal) bool {
	return p != nil && p.UserID != uuid.Nil
}

// RequireAuthenticated returns ErrUnauthenticated for a missing or anonymous principal.
func RequireAuthenticated(p *Principal) error {
	if !authenticated(p) {
		return ErrUnauthenticated
	}
	return nil
}

// Action is the operation a principal attempts on a target.
type Action int

const (
	ActionView Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionMarkRead
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionMarkRead:
		return "mark_read"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Target is a sealed union of the entity kinds access is decided for.
type Target interface {
	isTarget()
}

// ConversationTarget is a conversation identified by its participant set.
type ConversationTarget struct {
	Participants []uuid.UUID
}

// MessageTarget is a message together with the participants of its conversation.
// SenderID is zero when the message does not exist yet.
type MessageTarget struct {
	SenderID     uuid.UUID
	ReceiverID   *uuid.UUID
	Participants []uuid.UUID
}

func (ConversationTarget) isTarget() {}
func (MessageTarget) isTarget()      {}

// ForConversation builds the target for c.
func ForConversation(c models.Conversation) ConversationTarget {
	return ConversationTarget{Participants: c.Participants}
}

// ForMessage builds the target for m, which belongs to c.
func ForMessage(m models.Message, c models.Conversation) MessageTarget {
	return MessageTarget{SenderID: m.SenderID, ReceiverID: m.ReceiverID, Participants: c.Participants}
}

// ForNewMessage builds the target for a message about to be posted into c.
func ForNewMessage(c models.Conversation) MessageTarget {
	return MessageTarget{Participants: c.Participants}
}

// Authorize returns nil when p may perform action on t.
func Authorize(p *Principal, action Action, t Target) error {
	if !authenticated(p) {
		return ErrUnauthenticated
	}
	switch t := t.(type) {
	case ConversationTarget:
		return conversationPermission(p, action, t)
	case MessageTarget:
		return messagePermission(p, action, t)
	}
	return fmt.Errorf("authz: unsupported target %T", t)
}

func conversationPermission(p *Principal, action Action, t ConversationTarget) error {
	if action == ActionCreate {
		return nil
	}
	if !contains(t.Participants, p.UserID) {
		return ErrNotParticipant
	}
	return nil
}

func messagePermission(p *Principal, action Action, t MessageTarget) error {
	if !contains(t.Participants, p.UserID) {
		return ErrNotParticipant
	}
	switch action {
	case ActionUpdate, ActionDelete:
		if t.SenderID != p.UserID {
			return ErrNotSender
		}
	case ActionMarkRead:
		// read state belongs to the addressed receiver
		if t.ReceiverID == nil || *t.ReceiverID != p.UserID {
			return ErrNotReceiver
		}
	}
	return nil
}

// RequireRole allows superusers, staff, admins and members of a privileged group.
func RequireRole(p *Principal) error {
	if !authenticated(p) {
		return ErrUnauthenticated
	}
	if p.IsSuperuser || p.IsStaff || p.Role == models.RoleAdmin {
		return nil
	}
	for _, g := range p.Groups {
		for _, allowed := range PrivilegedGroups {
			if strings.EqualFold(g, allowed) {
				return nil
			}
		}
	}
	return ErrRoleRequired
}

// RequireAdmin allows superusers, staff, admins and members of the admin group.
// Moderators pass RequireRole but not RequireAdmin.
func RequireAdmin(p *Principal) error {
	if !authenticated(p) {
		return ErrUnauthenticated
	}
	if p.IsSuperuser || p.IsStaff || p.Role == models.RoleAdmin {
		return nil
	}
	for _, g := range p.Groups {
		if strings.EqualFold(g, models.GroupAdmin) {
			return nil
		}
	}
	return ErrAdminRequired
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
