package mongostore

import (
	"context"

	"LanChat/internal/db"
	"LanChat/internal/model"
	"LanChat/internal/repo"

	"go.uber.org/zap"
)

type userRepository struct {
	users  *db.Repository[userDoc]
	logger *zap.Logger
}

func (u *userRepository) FindProfiles(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	out := make(map[string]model.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := repo.EnsureTimeout(ctx, repo.DefaultReadTimeout)
	defer cancel()

	var docs []userDoc
	err := repo.RetryRead(ctx, isRetryableError, func(ctx context.Context) error {
		var err error
		docs, err = u.users.FindAll(ctx, db.NewFilter().In("user_id", ids).Build())
		return err
	})
	if err != nil {
		u.logger.Error("failed to load user profiles", zap.Int("count", len(ids)), zap.Error(err))
		return nil, wrap(err, "mongostore.FindProfiles.find")
	}

	for i := range docs {
		p := docs[i].toModel()
		out[p.ID] = p
	}
	return out, nil
}
