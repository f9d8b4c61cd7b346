package pgstore

import (
	"time"

	"LanChat/internal/model"

	"github.com/uptrace/bun"
)

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations"`

	ID             string     `bun:"id,pk,type:uuid"`
	ParticipantIDs []string   `bun:"participant_ids,array,type:text[],notnull"`
	IsGroup        bool       `bun:"is_group,notnull"`
	GroupAdmins    []string   `bun:"group_admins,array,type:text[],notnull"`
	CreatorID      *string    `bun:"creator_id"`
	Name           *string    `bun:"name"`
	Description    *string    `bun:"description"`
	DirectKey      *string    `bun:"direct_key,unique"`
	LastMessageID  *string    `bun:"last_message_id,type:uuid"`
	LastMessageAt  *time.Time `bun:"last_message_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
}

func newConversationRow(c *model.Conversation) *conversationRow {
	row := &conversationRow{
		ID:             c.ID,
		ParticipantIDs: nonNil(c.ParticipantIDs),
		IsGroup:        c.IsGroup,
		GroupAdmins:    nonNil(c.GroupAdmins),
		CreatorID:      c.CreatorID,
		Name:           c.Name,
		Description:    c.Description,
		LastMessageID:  c.LastMessageID,
		LastMessageAt:  c.LastMessageAt,
		CreatedAt:      c.CreatedAt,
	}
	if key := c.DirectKey(); key != "" {
		row.DirectKey = &key
	}
	return row
}

func (r *conversationRow) toModel() *model.Conversation {
	return &model.Conversation{
		ID:             r.ID,
		ParticipantIDs: nonNil(r.ParticipantIDs),
		IsGroup:        r.IsGroup,
		GroupAdmins:    nonNil(r.GroupAdmins),
		CreatorID:      r.CreatorID,
		Name:           r.Name,
		Description:    r.Description,
		LastMessageID:  r.LastMessageID,
		LastMessageAt:  utc(r.LastMessageAt),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages"`

	ID             string              `bun:"id,pk,type:uuid"`
	ConversationID string              `bun:"conversation_id,type:uuid,notnull"`
	SenderID       string              `bun:"sender_id,notnull"`
	Content        string              `bun:"content,notnull"`
	ContentType    string              `bun:"content_type,notnull"`
	FileURL        *string             `bun:"file_url"`
	ReplyTo        *string             `bun:"reply_to,type:uuid"`
	Reactions      map[string][]string `bun:"reactions,type:jsonb,notnull"`
	IsRead         bool                `bun:"is_read,notnull"`
	ReadAt         *time.Time          `bun:"read_at"`
	IsDeleted      bool                `bun:"is_deleted,notnull"`
	EditedAt       *time.Time          `bun:"edited_at"`
	ExpiresAt      *time.Time          `bun:"expires_at"`
	CreatedAt      time.Time           `bun:"created_at,notnull"`
}

func newMessageRow(m *model.Message) *messageRow {
	reactions := map[string][]string(m.Reactions.Clone())
	if reactions == nil {
		reactions = map[string][]string{}
	}
	return &messageRow{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ContentType:    string(m.ContentType),
		FileURL:        m.FileURL,
		ReplyTo:        m.ReplyTo,
		Reactions:      reactions,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		IsDeleted:      m.IsDeleted,
		EditedAt:       m.EditedAt,
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      m.CreatedAt,
	}
}

func (r *messageRow) toModel() *model.Message {
	reactions := model.Reactions(r.Reactions)
	if reactions == nil {
		reactions = model.Reactions{}
	}
	return &model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Content:        r.Content,
		ContentType:    model.ContentType(r.ContentType),
		FileURL:        r.FileURL,
		ReplyTo:        r.ReplyTo,
		Reactions:      reactions,
		IsRead:         r.IsRead,
		ReadAt:         utc(r.ReadAt),
		IsDeleted:      r.IsDeleted,
		EditedAt:       utc(r.EditedAt),
		ExpiresAt:      utc(r.ExpiresAt),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// userRow is the directory table owned by the user service; this module only reads it.
type userRow struct {
	bun.BaseModel `bun:"table:user_profiles"`

	ID        string  `bun:"id,pk"`
	Username  string  `bun:"username,notnull"`
	FullName  string  `bun:"full_name,notnull"`
	AvatarURL *string `bun:"avatar_url"`
	CompanyID string  `bun:"company_id,notnull"`
}

func (r *userRow) toModel() model.UserProfile {
	return model.UserProfile{
		ID:        r.ID,
		Username:  r.Username,
		FullName:  r.FullName,
		AvatarURL: r.AvatarURL,
		CompanyID: r.CompanyID,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
