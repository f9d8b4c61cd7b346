package repo

import (
	"context"
	"time"

	"LanChat/internal/model"
)

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks LanChat/internal/repo ConversationRepository,MessageRepository,UserRepository

// ConversationRepository persists conversations. Implementations serialize
// read-modify-write per conversation row.
type ConversationRepository interface {
	// Create inserts c. A direct conversation whose pair already exists fails with ErrConflict.
	Create(ctx context.Context, c *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// FindDirect looks up the direct conversation whose participant set equals {a, b}.
	FindDirect(ctx context.Context, a, b string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	// UpdateMembership loads the row, hands a copy to fn and stores the participant
	// and admin sets fn leaves behind, all while holding the row.
	UpdateMembership(ctx context.Context, id string, fn func(*model.Conversation) error) (*model.Conversation, error)
}

// MessageRepository persists messages.
type MessageRepository interface {
	// Insert stores m and moves its conversation's last-message pointer forward
	// in the same unit of work.
	Insert(ctx context.Context, m *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.Message, error)
	// ListBefore returns up to limit messages created strictly before cursor
	// (or the newest when cursor is nil), newest first, skipping messages expired at now.
	ListBefore(ctx context.Context, conversationID string, cursor *time.Time, now time.Time, limit int) ([]model.Message, error)
	// UpdateContent edits a message that is not deleted; it fails with ErrConflict otherwise.
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	// SoftDelete marks the message deleted and reports whether this call changed it.
	SoftDelete(ctx context.Context, id string) (bool, error)
	// ToggleReaction flips userID in reactions[emoji] atomically and returns the new map.
	ToggleReaction(ctx context.Context, id, userID, emoji string) (model.Reactions, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	// UnreadCounts counts, per conversation, unread and undeleted messages not sent by userID.
	UnreadCounts(ctx context.Context, userID string, conversationIDs []string) (map[string]int64, error)
	// DeleteExpired hard deletes messages that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserRepository is a read-only view of the user directory.
type UserRepository interface {
	FindProfiles(ctx context.Context, ids []string) (map[string]model.UserProfile, error)
}

// Store bundles one backend's repositories.
type Store struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Users         UserRepository
	Ping          func(ctx context.Context) error
	Close         func(ctx context.Context) error
}
