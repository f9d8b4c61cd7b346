package mongostore

import (
	"context"

	"LanChat/internal/db"
	"LanChat/internal/model"
	"LanChat/internal/repo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// maxCASAttempts bounds optimistic retries on the conversation version.
const maxCASAttempts = 16

type conversationRepository struct {
	conversations *db.Repository[conversationDoc]
	logger        *zap.Logger
}

func (r *conversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	doc := newConversationDoc(c)
	if _, err := r.conversations.Create(ctx, doc); err != nil {
		return wrap(err, "mongostore.CreateConversation.insert")
	}

	c.ID = doc.ID.Hex()
	r.logger.Debug("conversation inserted",
		zap.String("conversation_id", c.ID),
		zap.Bool("is_group", c.IsGroup),
	)
	return nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var doc *conversationDoc
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		var err error
		doc, err = r.conversations.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, wrap(err, "mongostore.FindConversation.find")
	}
	return doc.toModel(), nil
}

// FindDirect matches on the sorted pair key, which is set equality for two participants.
func (r *conversationRepository) FindDirect(ctx context.Context, a, b string) (*model.Conversation, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("direct_key", model.DirectKey(a, b)).Eq("is_group", false).Build()

	var doc *conversationDoc
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		var err error
		doc, err = r.conversations.FindOne(ctx, filter)
		return err
	})
	if err != nil {
		return nil, wrap(err, "mongostore.FindDirect.find")
	}
	return doc.toModel(), nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participant_ids", userID).Build()
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}})

	var docs []conversationDoc
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		var err error
		docs, err = r.conversations.FindAll(ctx, filter, opts)
		return err
	})
	if err != nil {
		return nil, wrap(err, "mongostore.ListConversations.find")
	}

	out := make([]model.Conversation, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toModel())
	}
	return out, nil
}

// UpdateMembership is a compare-and-swap on the document version: the write
// only lands if nobody changed membership since we read it.
func (r *conversationRepository) UpdateMembership(ctx context.Context, id string, fn func(*model.Conversation) error) (*model.Conversation, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc, err := r.conversations.FindByID(ctx, id)
		if err != nil {
			return nil, wrap(err, "mongostore.UpdateMembership.find")
		}

		conv := doc.toModel()
		if err := fn(conv); err != nil {
			return nil, err
		}

		filter := db.NewFilter().Eq("_id", doc.ID).Eq("version", doc.Version).Build()
		res, err := r.conversations.Update(ctx, filter, bson.M{
			"$set": bson.M{
				"participant_ids": conv.ParticipantIDs,
				"group_admins":    conv.GroupAdmins,
			},
			"$inc": bson.M{"version": 1},
		})
		if err != nil {
			return nil, wrap(err, "mongostore.UpdateMembership.update")
		}
		if res.MatchedCount == 1 {
			return conv, nil
		}

		r.logger.Debug("membership update lost a race, retrying",
			zap.String("conversation_id", id),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, repo.ErrContention
}
