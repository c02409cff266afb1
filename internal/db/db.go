package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect opens the database and optionally applies migrations.
func Connect(ctx context.Context, dsn string, migrate bool) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if migrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL DEFAULT '',
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'guest',
            is_staff BOOLEAN NOT NULL DEFAULT FALSE,
            is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            groups TEXT[] NOT NULL DEFAULT '{}',
            password_hash TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email) WHERE email <> '';`,
	`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS conversation_participants_user_idx ON conversation_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            receiver_id UUID REFERENCES users(id) ON DELETE CASCADE,
            parent_id UUID REFERENCES messages(id) ON DELETE CASCADE,
            body TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            edited_by UUID REFERENCES users(id) ON DELETE SET NULL,
            sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            edited_at TIMESTAMPTZ
        );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_sent_idx ON messages (conversation_id, sent_at);`,
	`CREATE INDEX IF NOT EXISTS messages_parent_idx ON messages (parent_id);`,
	`CREATE INDEX IF NOT EXISTS messages_unread_idx ON messages (receiver_id) WHERE is_read = FALSE;`,
	`CREATE TABLE IF NOT EXISTS message_history (
            id UUID PRIMARY KEY,
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            old_content TEXT NOT NULL,
            edited_by UUID REFERENCES users(id) ON DELETE SET NULL,
            edited_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS message_history_message_idx ON message_history (message_id, edited_at);`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            is_seen BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC);`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	log.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
