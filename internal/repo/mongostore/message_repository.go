package mongostore

import (
	"context"
	"time"

	"LanChat/internal/db"
	"LanChat/internal/model"
	"LanChat/internal/repo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// maxToggleAttempts bounds how often a toggle retries after losing a race
// between its $pull and $push probes.
const maxToggleAttempts = 8

type messageRepository struct {
	messages      *db.Repository[messageDoc]
	conversations *db.Repository[conversationDoc]
	logger        *zap.Logger
	transactions  bool
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) error {
	convID, err := primitive.ObjectIDFromHex(msg.ConversationID)
	if err != nil {
		return repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	doc := newMessageDoc(msg, convID)
	insert := func(ctx context.Context) error {
		_, err := m.messages.Create(ctx, doc)
		return wrap(err, "mongostore.InsertMessage.insert")
	}
	point := func(ctx context.Context) error {
		return m.movePointer(ctx, doc)
	}

	if m.transactions {
		err = m.inTransaction(ctx, func(ctx context.Context) error {
			if err := insert(ctx); err != nil {
				return err
			}
			return point(ctx)
		})
	} else {
		err = insertThenPoint(ctx, insert, point, m.logger.With(zap.String("conversation_id", msg.ConversationID)))
	}
	if err != nil {
		m.logger.Error("failed to insert message",
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err),
		)
		return err
	}

	msg.ID = doc.ID.Hex()
	if msg.Reactions == nil {
		msg.Reactions = model.Reactions{}
	}
	m.logger.Debug("message inserted",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", msg.ConversationID),
	)
	return nil
}

// insertThenPoint is the path without transactions. Once the insert is
// stored the message counts as sent: a pointer failure is only logged, and the
// next message in the conversation moves the pointer past it.
func insertThenPoint(ctx context.Context, insert, point func(context.Context) error, logger *zap.Logger) error {
	if err := insert(ctx); err != nil {
		return err
	}
	if err := point(ctx); err != nil {
		logger.Warn("message stored but last-message pointer not updated", zap.Error(err))
	}
	return nil
}

// movePointer only moves the last-message pointer forward in time.
func (m *messageRepository) movePointer(ctx context.Context, doc messageDoc) error {
	id := doc.ID.Hex()
	filter := db.NewFilter().
		Eq("_id", doc.ConversationID).
		Or(
			bson.M{"last_message_at": nil},
			bson.M{"last_message_at": bson.M{"$lte": doc.CreatedAt}},
		).Build()

	_, err := m.conversations.Update(ctx, filter, bson.M{"$set": bson.M{
		"last_message_id": id,
		"last_message_at": doc.CreatedAt,
	}})
	return wrap(err, "mongostore.InsertMessage.pointer")
}

func (m *messageRepository) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := m.messages.Collection().Database().Client().StartSession()
	if err != nil {
		return wrap(err, "mongostore.InsertMessage.session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (m *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var doc *messageDoc
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		var err error
		doc, err = m.messages.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, wrap(err, "mongostore.FindMessage.find")
	}
	return doc.toModel(), nil
}

func (m *messageRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Message, error) {
	out := make(map[string]*model.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectIDs("_id", ids).Build()

	var docs []messageDoc
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		var err error
		docs, err = m.messages.FindAll(ctx, filter)
		return err
	})
	if err != nil {
		return nil, wrap(err, "mongostore.FindMessages.find")
	}

	for i := range docs {
		msg := docs[i].toModel()
		out[msg.ID] = msg
	}
	return out, nil
}

func (m *messageRepository) ListBefore(ctx context.Context, conversationID string, cursor *time.Time, now time.Time, limit int) ([]model.Message, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	f := db.NewFilter().ObjectID("conversation_id", conversationID).NotExpired("expires_at", now)
	if cursor != nil {
		f.Lt("created_at", *cursor)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	m.logger.Debug("listing messages",
		zap.String("conversation_id", conversationID),
		zap.Int("limit", limit),
	)

	var docs []messageDoc
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		var err error
		docs, err = m.messages.FindAll(ctx, f.Build(), opts)
		return err
	})
	if err != nil {
		return nil, wrap(err, "mongostore.ListMessages.find")
	}

	out := make([]model.Message, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toModel())
	}
	return out, nil
}

func (m *messageRepository) UnreadCounts(ctx context.Context, userID string, conversationIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	match := db.NewFilter().
		ObjectIDs("conversation_id", conversationIDs).
		Eq("is_read", false).
		Eq("is_deleted", false).
		Ne("sender_id", userID).
		Build()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$conversation_id"}, {Key: "n", Value: bson.M{"$sum": 1}}}}},
	}

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
		N  int64              `bson:"n"`
	}
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		cursor, err := m.messages.Collection().Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &rows)
	})
	if err != nil {
		return nil, wrap(err, "mongostore.UnreadCounts.aggregate")
	}

	for _, id := range conversationIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.ID.Hex()] = row.N
	}
	return counts, nil
}

// -----------------------------------------------------------------------------
// Single-document mutations
// -----------------------------------------------------------------------------

func (m *messageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("_id", id).Eq("is_deleted", false).Build()
	res, err := m.messages.Update(ctx, filter, bson.M{"$set": bson.M{
		"content":   content,
		"edited_at": editedAt,
	}})
	if err != nil {
		return wrap(err, "mongostore.UpdateContent.update")
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return m.missingOr(ctx, id, repo.ErrConflict)
}

func (m *messageRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("_id", id).Eq("is_deleted", false).Build()
	res, err := m.messages.Update(ctx, filter, bson.M{"$set": bson.M{"is_deleted": true}})
	if err != nil {
		return false, wrap(err, "mongostore.SoftDelete.update")
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, m.missingOr(ctx, id, nil)
}

// ToggleReaction flips the pair with two conditional single-document updates:
// $pull when the pair is present, $push when it is absent. Each is atomic, so
// concurrent toggles on the same message never overwrite each other.
func (m *messageRepository) ToggleReaction(ctx context.Context, id, userID, emoji string) (model.Reactions, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	pair := bson.M{"emoji": emoji, "user_id": userID}

	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		present := db.NewFilter().ObjectID("_id", id).ElemMatch("reactions", pair).Build()
		res, err := m.messages.Update(ctx, present, bson.M{"$pull": bson.M{"reactions": pair}})
		if err != nil {
			return nil, wrap(err, "mongostore.ToggleReaction.pull")
		}
		if res.MatchedCount == 1 {
			return m.reactionsOf(ctx, id)
		}

		absent := db.NewFilter().ObjectID("_id", id).NotElemMatch("reactions", pair).Build()
		res, err = m.messages.Update(ctx, absent, bson.M{"$push": bson.M{"reactions": pair}})
		if err != nil {
			return nil, wrap(err, "mongostore.ToggleReaction.push")
		}
		if res.MatchedCount == 1 {
			return m.reactionsOf(ctx, id)
		}

		if err := m.missingOr(ctx, id, nil); err != nil {
			return nil, err
		}
	}
	return nil, repo.ErrContention
}

func (m *messageRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("_id", id).Build()
	res, err := m.messages.Update(ctx, filter, bson.M{"$set": bson.M{
		"is_read": true,
		"read_at": at,
	}})
	if err != nil {
		return wrap(err, "mongostore.MarkRead.update")
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (m *messageRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	expired := db.NewFilter().Lt("expires_at", cutoff).Build()
	docs, err := m.messages.FindAll(ctx, expired, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, wrap(err, "mongostore.DeleteExpired.find")
	}
	if len(docs) == 0 {
		return 0, nil
	}

	oids := make([]primitive.ObjectID, 0, len(docs))
	hexes := make([]string, 0, len(docs))
	for _, d := range docs {
		oids = append(oids, d.ID)
		hexes = append(hexes, d.ID.Hex())
	}

	res, err := m.messages.DeleteMany(ctx, db.NewFilter().In("_id", oids).Build())
	if err != nil {
		return 0, wrap(err, "mongostore.DeleteExpired.delete")
	}

	if _, err := m.conversations.UpdateMany(ctx,
		db.NewFilter().In("last_message_id", hexes).Build(),
		bson.M{"$set": bson.M{"last_message_id": nil}},
	); err != nil {
		return res.DeletedCount, wrap(err, "mongostore.DeleteExpired.pointers")
	}
	if _, err := m.messages.UpdateMany(ctx,
		db.NewFilter().In("reply_to", oids).Build(),
		bson.M{"$unset": bson.M{"reply_to": ""}},
	); err != nil {
		return res.DeletedCount, wrap(err, "mongostore.DeleteExpired.replies")
	}

	return res.DeletedCount, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) reactionsOf(ctx context.Context, id string) (model.Reactions, error) {
	doc, err := m.messages.FindByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "mongostore.ToggleReaction.reload")
	}
	return reactionsFromDocs(doc.Reactions), nil
}

// missingOr returns repo.ErrNotFound when the message does not exist and otherwise fallback.
func (m *messageRepository) missingOr(ctx context.Context, id string, fallback error) error {
	n, err := m.messages.Count(ctx, db.NewFilter().ObjectID("_id", id).Build())
	if err != nil {
		return wrap(err, "mongostore.exists")
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return fallback
}
