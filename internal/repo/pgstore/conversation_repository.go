package pgstore

import (
	"context"

	"LanChat/internal/model"
	"LanChat/internal/repo"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type conversationRepository struct {
	db     *bun.DB
	logger *zap.Logger
}

func (r *conversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	row := newConversationRow(c)
	row.ID = uuid.NewString()

	res, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (direct_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return wrap(err, "pgstore.CreateConversation.insert")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrConflict
	}

	c.ID = row.ID
	r.logger.Debug("conversation inserted",
		zap.String("conversation_id", c.ID),
		zap.Bool("is_group", c.IsGroup),
	)
	return nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	if !validID(id) {
		return nil, repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	row := new(conversationRow)
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		return r.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	})
	if err != nil {
		return nil, wrap(err, "pgstore.FindConversation.scan")
	}
	return row.toModel(), nil
}

func (r *conversationRepository) FindDirect(ctx context.Context, a, b string) (*model.Conversation, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	row := new(conversationRow)
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(row).
			Where("direct_key = ?", model.DirectKey(a, b)).
			Where("is_group = false").
			Scan(ctx)
	})
	if err != nil {
		return nil, wrap(err, "pgstore.FindDirect.scan")
	}
	return row.toModel(), nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var rows []conversationRow
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.NewSelect().
			Model(&rows).
			Where("? = ANY(participant_ids)", userID).
			OrderExpr("last_message_at DESC NULLS LAST, created_at DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, wrap(err, "pgstore.ListConversations.scan")
	}

	out := make([]model.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

// UpdateMembership holds the row lock from read to write so concurrent
// membership changes apply one after another.
func (r *conversationRepository) UpdateMembership(ctx context.Context, id string, fn func(*model.Conversation) error) (*model.Conversation, error) {
	if !validID(id) {
		return nil, repo.ErrNotFound
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultWriteTimeout)
	defer cancel()

	var updated *model.Conversation
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(conversationRow)
		if err := tx.NewSelect().Model(row).Where("id = ?", id).For("UPDATE").Scan(ctx); err != nil {
			return wrap(err, "pgstore.UpdateMembership.lock")
		}

		next := row.toModel()
		if err := fn(next); err != nil {
			return err
		}

		row.ParticipantIDs = nonNil(next.ParticipantIDs)
		row.GroupAdmins = nonNil(next.GroupAdmins)
		if _, err := tx.NewUpdate().
			Model(row).
			Column("participant_ids", "group_admins").
			WherePK().
			Exec(ctx); err != nil {
			return wrap(err, "pgstore.UpdateMembership.update")
		}

		updated = row.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
