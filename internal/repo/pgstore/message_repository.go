package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"LanChat/internal/model"
	"LanChat/internal/repo"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type messageRepository struct {
	db     *bun.DB
	logger *zap.Logger
}

func (r *messageRepository) Insert(ctx context.Context, m *model.Message) error {
	if !validID(m.ConversationID) {
		return repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	row := newMessageRow(m)
	row.ID = uuid.NewString()
	if row.ReplyTo != nil && !validID(*row.ReplyTo) {
		row.ReplyTo = nil
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var convID string
		if err := tx.NewSelect().
			Model((*conversationRow)(nil)).
			Column("id").
			Where("id = ?", m.ConversationID).
			For("UPDATE").
			Scan(ctx, &convID); err != nil {
			return wrap(err, "pgstore.InsertMessage.lock")
		}

		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return wrap(err, "pgstore.InsertMessage.insert")
		}

		_, err := tx.NewUpdate().
			Model((*conversationRow)(nil)).
			Set("last_message_id = ?", row.ID).
			Set("last_message_at = ?", row.CreatedAt).
			Where("id = ?", m.ConversationID).
			Where("(last_message_at IS NULL OR last_message_at <= ?)", row.CreatedAt).
			Exec(ctx)
		return wrap(err, "pgstore.InsertMessage.pointer")
	})
	if err != nil {
		r.logger.Error("failed to insert message",
			zap.String("conversation_id", m.ConversationID),
			zap.Error(err),
		)
		return err
	}

	m.ID = row.ID
	if m.Reactions == nil {
		m.Reactions = model.Reactions{}
	}
	return nil
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	if !validID(id) {
		return nil, repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	row := new(messageRow)
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		return r.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	})
	if err != nil {
		return nil, wrap(err, "pgstore.FindMessage.scan")
	}
	return row.toModel(), nil
}

func (r *messageRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Message, error) {
	out := make(map[string]*model.Message, len(ids))
	ids = validIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var rows []messageRow
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	})
	if err != nil {
		return nil, wrap(err, "pgstore.FindMessages.scan")
	}

	for i := range rows {
		m := rows[i].toModel()
		out[m.ID] = m
	}
	return out, nil
}

func (r *messageRepository) ListBefore(ctx context.Context, conversationID string, cursor *time.Time, now time.Time, limit int) ([]model.Message, error) {
	if !validID(conversationID) {
		return []model.Message{}, nil
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var rows []messageRow
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		rows = rows[:0]
		q := r.db.NewSelect().
			Model(&rows).
			Where("conversation_id = ?", conversationID).
			Where("(expires_at IS NULL OR expires_at > ?)", now)
		if cursor != nil {
			q = q.Where("created_at < ?", *cursor)
		}
		return q.OrderExpr("created_at DESC, id DESC").Limit(limit).Scan(ctx)
	})
	if err != nil {
		return nil, wrap(err, "pgstore.ListMessages.scan")
	}

	out := make([]model.Message, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	if !validID(id) {
		return repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*messageRow)(nil)).
		Set("content = ?", content).
		Set("edited_at = ?", editedAt).
		Where("id = ?", id).
		Where("is_deleted = false").
		Exec(ctx)
	if err != nil {
		return wrap(err, "pgstore.UpdateContent.update")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return r.missingOr(ctx, id, repo.ErrConflict)
}

func (r *messageRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*messageRow)(nil)).
		Set("is_deleted = true").
		Where("id = ?", id).
		Where("is_deleted = false").
		Exec(ctx)
	if err != nil {
		return false, wrap(err, "pgstore.SoftDelete.update")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	return false, r.missingOr(ctx, id, nil)
}

func (r *messageRepository) ToggleReaction(ctx context.Context, id, userID, emoji string) (model.Reactions, error) {
	if !validID(id) {
		return nil, repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	var reactions model.Reactions
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(messageRow)
		if err := tx.NewSelect().
			Model(row).
			Column("id", "reactions").
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx); err != nil {
			return wrap(err, "pgstore.ToggleReaction.lock")
		}

		reactions = model.Reactions(row.Reactions)
		if reactions == nil {
			reactions = model.Reactions{}
		}
		reactions.Toggle(emoji, userID)

		encoded, err := json.Marshal(reactions)
		if err != nil {
			return wrap(err, "pgstore.ToggleReaction.encode")
		}
		_, err = tx.NewUpdate().
			Model((*messageRow)(nil)).
			Set("reactions = ?::jsonb", string(encoded)).
			Where("id = ?", id).
			Exec(ctx)
		return wrap(err, "pgstore.ToggleReaction.update")
	})
	if err != nil {
		return nil, err
	}
	return reactions, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	res, err := r.db.NewUpdate().
		Model((*messageRow)(nil)).
		Set("is_read = true").
		Set("read_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrap(err, "pgstore.MarkRead.update")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *messageRepository) UnreadCounts(ctx context.Context, userID string, conversationIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(conversationIDs))
	for _, id := range conversationIDs {
		counts[id] = 0
	}
	ids := validIDs(conversationIDs)
	if len(ids) == 0 {
		return counts, nil
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var rows []struct {
		ConversationID string `bun:"conversation_id"`
		N              int64  `bun:"n"`
	}
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.NewSelect().
			Model((*messageRow)(nil)).
			Column("conversation_id").
			ColumnExpr("count(*) AS n").
			Where("conversation_id IN (?)", bun.In(ids)).
			Where("is_read = false").
			Where("is_deleted = false").
			Where("sender_id <> ?", userID).
			Group("conversation_id").
			Scan(ctx, &rows)
	})
	if err != nil {
		return nil, wrap(err, "pgstore.UnreadCounts.scan")
	}

	for _, row := range rows {
		counts[row.ConversationID] = row.N
	}
	return counts, nil
}

// DeleteExpired clears pointers to the doomed rows first; reply_to is nulled by the foreign key.
func (r *messageRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	var deleted int64
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		expired := tx.NewSelect().
			Model((*messageRow)(nil)).
			Column("id").
			Where("expires_at < ?", cutoff)

		if _, err := tx.NewUpdate().
			Model((*conversationRow)(nil)).
			Set("last_message_id = NULL").
			Where("last_message_id IN (?)", expired).
			Exec(ctx); err != nil {
			return wrap(err, "pgstore.DeleteExpired.pointers")
		}

		res, err := tx.NewDelete().
			Model((*messageRow)(nil)).
			Where("expires_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return wrap(err, "pgstore.DeleteExpired.delete")
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *messageRepository) missingOr(ctx context.Context, id string, fallback error) error {
	exists, err := r.db.NewSelect().Model((*messageRow)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return wrap(err, "pgstore.exists")
	}
	if !exists {
		return repo.ErrNotFound
	}
	return fallback
}
