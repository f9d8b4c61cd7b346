package pgstore

import (
	"context"

	"LanChat/internal/model"
	"LanChat/internal/repo"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type userRepository struct {
	db     *bun.DB
	logger *zap.Logger
}

func (u *userRepository) FindProfiles(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	out := make(map[string]model.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var rows []userRow
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		rows = rows[:0]
		return u.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	})
	if err != nil {
		u.logger.Error("failed to load user profiles", zap.Int("count", len(ids)), zap.Error(err))
		return nil, wrap(err, "pgstore.FindProfiles.scan")
	}

	for i := range rows {
		p := rows[i].toModel()
		out[p.ID] = p
	}
	return out, nil
}
