package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore is the sqlx-backed Store.
type PostgresStore struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	tx  *sqlx.Tx
	seq *int
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, ext: db}
}

func (s *PostgresStore) Users() UserRepository                 { return NewUserRepo(s.ext) }
func (s *PostgresStore) Conversations() ConversationRepository { return NewConversationRepo(s.ext) }
func (s *PostgresStore) Messages() MessageRepository           { return NewMessageRepo(s.ext) }
func (s *PostgresStore) Histories() HistoryRepository          { return NewHistoryRepo(s.ext) }
func (s *PostgresStore) Notifications() NotificationRepository { return NewNotificationRepo(s.ext) }

// WithinTx runs fn inside a database transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) (err error) {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &PostgresStore{db: s.db, ext: tx, tx: tx, seq: new(int)}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Isolated wraps fn in a SAVEPOINT when a transaction is running.
func (s *PostgresStore) Isolated(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.tx == nil {
		return s.WithinTx(ctx, fn)
	}

	*s.seq++
	name := fmt.Sprintf("side_effect_%d", *s.seq)
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(ctx, s); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

func ensureAffected(res interface{ RowsAffected() (int64, error) }, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}

var (
	_ Store                  = (*PostgresStore)(nil)
	_ UserRepository         = (*UserRepo)(nil)
	_ ConversationRepository = (*ConversationRepo)(nil)
	_ MessageRepository      = (*MessageRepo)(nil)
	_ HistoryRepository      = (*HistoryRepo)(nil)
	_ NotificationRepository = (*NotificationRepo)(nil)
)
