package model

import "time"

// MessageEdited is pushed to every participant after an edit.
type MessageEdited struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	EditedAt       time.Time `json:"editedAt"`
}

// MessageDeleted is pushed to every participant after a soft delete.
type MessageDeleted struct {
	MessageID      string      `json:"messageId"`
	ConversationID string      `json:"conversationId"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"contentType"`
}

// MessageSeen is the read receipt sent to the original sender only.
type MessageSeen struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

// MessageReaction carries the full reaction map after a toggle.
type MessageReaction struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Emoji          string    `json:"emoji"`
	Reactions      Reactions `json:"reactions"`
}

// ConversationChanged announces creation or membership changes.
type ConversationChanged struct {
	ConversationID string            `json:"conversationId"`
	Action         ParticipantAction `json:"action,omitempty"`
	ActorID        string            `json:"actorId"`
	Conversation   *Conversation     `json:"conversation"`
}

// TypingIndicator - for typing status
type TypingIndicator struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceChange is broadcast to the company channel.
type PresenceChange struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload represents an error response sent to client via WebSocket
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
