package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

const userColumns = `id, username, email, first_name, last_name, role, is_staff, is_superuser, is_active, groups, password_hash, created_at`

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db sqlx.ExtContext
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db sqlx.ExtContext) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a user, assigning an id when missing.
func (r *UserRepo) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Groups == nil {
		user.Groups = pq.StringArray{}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.Role, user.IsStaff, user.IsSuperuser, user.IsActive, user.Groups, user.PasswordHash, user.CreatedAt)
	return mapPQError(err)
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByUsername fetches a user by login name.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUsers returns the users that exist among userIDs.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := sqlx.SelectContext(ctx, r.db, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, uuidArray(userIDs))
	return users, err
}

// ListUsers returns users ordered by username.
func (r *UserRepo) ListUsers(ctx context.Context, activeOnly bool) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY username ASC`
	var users []models.User
	err := sqlx.SelectContext(ctx, r.db, &users, query)
	return users, err
}

// UpdateUserRole replaces the role, staff flag and groups of a user.
func (r *UserRepo) UpdateUserRole(ctx context.Context, userID uuid.UUID, role models.Role, isStaff bool, groups []string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role=$2, is_staff=$3, groups=$4 WHERE id=$1`, userID, role, isStaff, pq.StringArray(groups))
	if err != nil {
		return err
	}
	return ensureAffected(res, ErrUserNotFound)
}

// DeleteUser removes the user row.
func (r *UserRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	return ensureAffected(res, ErrUserNotFound)
}
