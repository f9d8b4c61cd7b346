package mongostore

import (
	"time"

	"LanChat/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	usersCollection         = "users"
)

type conversationDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ParticipantIDs []string           `bson:"participant_ids"`
	IsGroup        bool               `bson:"is_group"`
	GroupAdmins    []string           `bson:"group_admins"`
	CreatorID      *string            `bson:"creator_id,omitempty"`
	Name           *string            `bson:"name,omitempty"`
	Description    *string            `bson:"description,omitempty"`
	DirectKey      string             `bson:"direct_key,omitempty"` // only direct chats carry it
	LastMessageID  *string            `bson:"last_message_id"`
	LastMessageAt  *time.Time         `bson:"last_message_at"`
	Version        int64              `bson:"version"`
	CreatedAt      time.Time          `bson:"created_at"`
}

func newConversationDoc(c *model.Conversation) conversationDoc {
	admins := c.GroupAdmins
	if admins == nil {
		admins = []string{}
	}
	return conversationDoc{
		ID:             primitive.NewObjectID(),
		ParticipantIDs: c.ParticipantIDs,
		IsGroup:        c.IsGroup,
		GroupAdmins:    admins,
		CreatorID:      c.CreatorID,
		Name:           c.Name,
		Description:    c.Description,
		DirectKey:      c.DirectKey(),
		LastMessageID:  c.LastMessageID,
		LastMessageAt:  c.LastMessageAt,
		CreatedAt:      c.CreatedAt,
	}
}

func (d *conversationDoc) toModel() *model.Conversation {
	return &model.Conversation{
		ID:             d.ID.Hex(),
		ParticipantIDs: d.ParticipantIDs,
		IsGroup:        d.IsGroup,
		GroupAdmins:    d.GroupAdmins,
		CreatorID:      d.CreatorID,
		Name:           d.Name,
		Description:    d.Description,
		LastMessageID:  d.LastMessageID,
		LastMessageAt:  d.LastMessageAt,
		CreatedAt:      d.CreatedAt,
	}
}

// Reactions are stored as an array of (emoji, user) pairs so a toggle is a
// single conditional $pull or $push on one document.
type reactionDoc struct {
	Emoji  string `bson:"emoji"`
	UserID string `bson:"user_id"`
}

type messageDoc struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty"`
	ConversationID primitive.ObjectID  `bson:"conversation_id"`
	SenderID       string              `bson:"sender_id"`
	Content        string              `bson:"content"`
	ContentType    string              `bson:"content_type"`
	FileURL        *string             `bson:"file_url,omitempty"`
	ReplyTo        *primitive.ObjectID `bson:"reply_to,omitempty"`
	Reactions      []reactionDoc       `bson:"reactions"`
	IsRead         bool                `bson:"is_read"`
	ReadAt         *time.Time          `bson:"read_at,omitempty"`
	IsDeleted      bool                `bson:"is_deleted"`
	EditedAt       *time.Time          `bson:"edited_at,omitempty"`
	ExpiresAt      *time.Time          `bson:"expires_at"`
	CreatedAt      time.Time           `bson:"created_at"`
}

func newMessageDoc(m *model.Message, conversationID primitive.ObjectID) messageDoc {
	d := messageDoc{
		ID:             primitive.NewObjectID(),
		ConversationID: conversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ContentType:    string(m.ContentType),
		FileURL:        m.FileURL,
		Reactions:      reactionDocs(m.Reactions),
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		IsDeleted:      m.IsDeleted,
		EditedAt:       m.EditedAt,
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      m.CreatedAt,
	}
	if m.ReplyTo != nil {
		if oid, err := primitive.ObjectIDFromHex(*m.ReplyTo); err == nil {
			d.ReplyTo = &oid
		}
	}
	return d
}

func (d *messageDoc) toModel() *model.Message {
	m := &model.Message{
		ID:             d.ID.Hex(),
		ConversationID: d.ConversationID.Hex(),
		SenderID:       d.SenderID,
		Content:        d.Content,
		ContentType:    model.ContentType(d.ContentType),
		FileURL:        d.FileURL,
		Reactions:      reactionsFromDocs(d.Reactions),
		IsRead:         d.IsRead,
		ReadAt:         d.ReadAt,
		IsDeleted:      d.IsDeleted,
		EditedAt:       d.EditedAt,
		ExpiresAt:      d.ExpiresAt,
		CreatedAt:      d.CreatedAt,
	}
	if d.ReplyTo != nil {
		id := d.ReplyTo.Hex()
		m.ReplyTo = &id
	}
	return m
}

func reactionDocs(r model.Reactions) []reactionDoc {
	docs := make([]reactionDoc, 0, len(r))
	for emoji, users := range r {
		for _, u := range users {
			docs = append(docs, reactionDoc{Emoji: emoji, UserID: u})
		}
	}
	return docs
}

func reactionsFromDocs(docs []reactionDoc) model.Reactions {
	r := make(model.Reactions, len(docs))
	for _, d := range docs {
		if !r.Has(d.Emoji, d.UserID) {
			r[d.Emoji] = append(r[d.Emoji], d.UserID)
		}
	}
	return r
}

// userDoc mirrors the directory collection maintained by the user service.
type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Username  string             `bson:"username"`
	FirstName string             `bson:"first_name"`
	LastName  string             `bson:"last_name"`
	Avatar    string             `bson:"avatar"`
	CompanyID string             `bson:"company_id"`
}

func (d *userDoc) toModel() model.UserProfile {
	p := model.UserProfile{
		ID:        d.UserID,
		Username:  d.Username,
		FullName:  joinName(d.FirstName, d.LastName),
		CompanyID: d.CompanyID,
	}
	if d.Avatar != "" {
		avatar := d.Avatar
		p.AvatarURL = &avatar
	}
	return p
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
