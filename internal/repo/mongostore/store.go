// Package mongostore persists conversations and messages in MongoDB.
package mongostore

import (
	"context"
	"errors"

	"LanChat/internal/db"
	"LanChat/internal/repo"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type Options struct {
	// Transactions wraps message insert and the pointer update in a
	// multi-document transaction. Requires a replica set.
	Transactions bool
}

// New builds the repositories over database and makes sure indexes exist.
func New(ctx context.Context, database *mongo.Database, logger *zap.Logger, opts Options) (repo.Store, error) {
	conversations := db.NewRepository[conversationDoc](database, conversationsCollection)
	messages := db.NewRepository[messageDoc](database, messagesCollection)
	users := db.NewRepository[userDoc](database, usersCollection)

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	err := conversations.EnsureIndexes(ctx,
		mongo.IndexModel{
			Keys: bson.D{{Key: "direct_key", Value: 1}},
			Options: options.Index().
				SetName("direct_key_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"direct_key": bson.M{"$exists": true}}),
		},
		mongo.IndexModel{Keys: bson.D{{Key: "participant_ids", Value: 1}, {Key: "last_message_at", Value: -1}}},
	)
	if err != nil {
		return repo.Store{}, pkgerrors.Wrap(err, "mongostore.New.conversationIndexes")
	}

	err = messages.EnsureIndexes(ctx,
		mongo.IndexModel{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetSparse(true)},
	)
	if err != nil {
		return repo.Store{}, pkgerrors.Wrap(err, "mongostore.New.messageIndexes")
	}

	err = users.EnsureIndexes(ctx, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}})
	if err != nil {
		return repo.Store{}, pkgerrors.Wrap(err, "mongostore.New.userIndexes")
	}

	return repo.Store{
		Conversations: &conversationRepository{conversations: conversations, logger: logger},
		Messages: &messageRepository{
			messages:      messages,
			conversations: conversations,
			logger:        logger,
			transactions:  opts.Transactions,
		},
		Users: &userRepository{users: users, logger: logger},
		Ping: func(ctx context.Context) error {
			return database.Client().Ping(ctx, nil)
		},
		Close: func(ctx context.Context) error {
			return database.Client().Disconnect(ctx)
		},
	}, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

// wrap converts driver errors: no documents become repo.ErrNotFound, timeouts
// and network failures are tagged transient.
func wrap(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repo.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return repo.ErrConflict
	case isRetryableError(err):
		return repo.Transient(pkgerrors.Wrap(err, op))
	}
	return pkgerrors.Wrap(err, op)
}
