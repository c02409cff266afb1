package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Role is the coarse account type of a user.
type Role string

const (
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleAdmin:
		return true
	}
	return false
}

// Group names that grant access to role-gated endpoints.
const (
	GroupAdmin     = "admin"
	GroupModerator = "moderator"
)

// User is an account that can take part in conversations.
type User struct {
	ID           uuid.UUID      `db:"id" json:"user_id"`
	Username     string         `db:"username" json:"username"`
	Email        string         `db:"email" json:"email"`
	FirstName    string         `db:"first_name" json:"first_name,omitempty"`
	LastName     string         `db:"last_name" json:"last_name,omitempty"`
	Role         Role           `db:"role" json:"role"`
	IsStaff      bool           `db:"is_staff" json:"is_staff"`
	IsSuperuser  bool           `db:"is_superuser" json:"is_superuser"`
	IsActive     bool           `db:"is_active" json:"is_active"`
	Groups       pq.StringArray `db:"groups" json:"groups"`
	PasswordHash string         `db:"password_hash" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// InGroup reports whether the user belongs to the named group.
func (u User) InGroup(name string) bool {
	for _, g := range u.Groups {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}
