// Package pgstore persists conversations and messages in PostgreSQL through bun.
package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"LanChat/internal/repo"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// New wraps db in the repository interfaces. Call CreateSchema first on an empty database.
func New(db *bun.DB, logger *zap.Logger) repo.Store {
	return repo.Store{
		Conversations: &conversationRepository{db: db, logger: logger},
		Messages:      &messageRepository{db: db, logger: logger},
		Users:         &userRepository{db: db, logger: logger},
		Ping: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
		Close: func(context.Context) error {
			return db.Close()
		},
	}
}

// CreateSchema creates the tables and indexes when they are missing.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*conversationRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return pkgerrors.Wrap(err, "pgstore.CreateSchema.conversations")
	}

	if _, err := db.NewCreateTable().
		Model((*messageRow)(nil)).
		IfNotExists().
		ForeignKey(`("conversation_id") REFERENCES "conversations" ("id") ON DELETE CASCADE`).
		ForeignKey(`("reply_to") REFERENCES "messages" ("id") ON DELETE SET NULL`).
		Exec(ctx); err != nil {
		return pkgerrors.Wrap(err, "pgstore.CreateSchema.messages")
	}

	if _, err := db.NewCreateTable().
		Model((*userRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return pkgerrors.Wrap(err, "pgstore.CreateSchema.users")
	}

	indexes := []*bun.CreateIndexQuery{
		db.NewCreateIndex().
			Model((*conversationRow)(nil)).
			Index("conversations_participants_idx").
			Using("GIN").
			Column("participant_ids"),
		db.NewCreateIndex().
			Model((*messageRow)(nil)).
			Index("messages_conversation_created_idx").
			Column("conversation_id", "created_at"),
		db.NewCreateIndex().
			Model((*messageRow)(nil)).
			Index("messages_expires_idx").
			Column("expires_at").
			Where("expires_at IS NOT NULL"),
	}
	for _, idx := range indexes {
		if _, err := idx.IfNotExists().Exec(ctx); err != nil {
			return pkgerrors.Wrap(err, "pgstore.CreateSchema.index")
		}
	}
	return nil
}

// validID filters ids postgres would reject as uuid input; such rows cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrap converts driver errors: no rows becomes repo.ErrNotFound, broken
// connections are tagged transient.
func wrap(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return repo.ErrNotFound
	case isRetryableError(err):
		return repo.Transient(pkgerrors.Wrap(err, op))
	}
	return pkgerrors.Wrap(err, op)
}
