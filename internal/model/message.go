package model

import (
	"slices"
	"time"
)

type ContentType string

const (
	ContentText    ContentType = "text"
	ContentFile    ContentType = "file"
	ContentImage   ContentType = "image"
	ContentAudio   ContentType = "audio"
	ContentVideo   ContentType = "video"
	ContentPDF     ContentType = "pdf"
	ContentCall    ContentType = "call"
	ContentDeleted ContentType = "deleted"
)

// DeletedPlaceholder replaces the content of soft deleted messages on every read path.
const DeletedPlaceholder = "🚫 This message was deleted"

// Sendable reports whether clients may send this type. "deleted" is server only.
func (t ContentType) Sendable() bool {
	switch t {
	case ContentText, ContentFile, ContentImage, ContentAudio, ContentVideo, ContentPDF, ContentCall:
		return true
	}
	return false
}

// NeedsFile reports whether the type carries an attachment url.
func (t ContentType) NeedsFile() bool {
	switch t {
	case ContentFile, ContentImage, ContentAudio, ContentVideo, ContentPDF:
		return true
	}
	return false
}

// Message as stored. Use Present to get what callers may see.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"contentType"`
	FileURL        *string     `json:"fileUrl"`
	ReplyTo        *string     `json:"replyTo"`
	Reactions      Reactions   `json:"reactions"`
	IsRead         bool        `json:"isRead"`
	ReadAt         *time.Time  `json:"readAt"`
	IsDeleted      bool        `json:"isDeleted"`
	EditedAt       *time.Time  `json:"editedAt"`
	ExpiresAt      *time.Time  `json:"expiresAt"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Expired reports whether the message must be hidden from reads at now.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Clone returns a deep copy safe to mutate.
func (m *Message) Clone() *Message {
	cp := *m
	cp.Reactions = m.Reactions.Clone()
	return &cp
}

// MessageView is a message hydrated with sender display fields.
type MessageView struct {
	Message
	SenderUsername  string  `json:"senderUsername"`
	SenderFullName  string  `json:"senderFullName"`
	SenderAvatarURL *string `json:"senderAvatarUrl"`
}

// Present hydrates m with sender fields and applies the deleted placeholder.
func Present(m Message, sender UserProfile) MessageView {
	if m.IsDeleted {
		m.Content = DeletedPlaceholder
		m.ContentType = ContentDeleted
		m.FileURL = nil
	}
	if m.Reactions == nil {
		m.Reactions = Reactions{}
	}
	return MessageView{
		Message:         m,
		SenderUsername:  sender.Username,
		SenderFullName:  sender.FullName,
		SenderAvatarURL: sender.AvatarURL,
	}
}

// Preview is the text shown as a conversation's last message.
func (m *Message) Preview() (string, ContentType) {
	if m.IsDeleted {
		return DeletedPlaceholder, ContentDeleted
	}
	return m.Content, m.ContentType
}

// Reactions maps an emoji to the users who reacted with it. Empty sets are never kept.
type Reactions map[string][]string

// Toggle adds userID to emoji or removes it when already present.
// It reports whether the user is now reacting with emoji.
func (r Reactions) Toggle(emoji, userID string) bool {
	users := r[emoji]
	if i := slices.Index(users, userID); i >= 0 {
		users = slices.Delete(users, i, i+1)
		if len(users) == 0 {
			delete(r, emoji)
		} else {
			r[emoji] = users
		}
		return false
	}
	r[emoji] = append(users, userID)
	return true
}

func (r Reactions) Has(emoji, userID string) bool {
	return slices.Contains(r[emoji], userID)
}

func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	cp := make(Reactions, len(r))
	for emoji, users := range r {
		cp[emoji] = slices.Clone(users)
	}
	return cp
}
