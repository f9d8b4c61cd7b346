package model

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	IsGroup        bool     `json:"isGroup"`
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
}

// ManageParticipantsRequest is the body of PUT /conversations/{id}/participants.
type ManageParticipantsRequest struct {
	ParticipantIDs []string          `json:"participantIds"`
	Action         ParticipantAction `json:"action"`
}

// SendMessageRequest is the body of POST /conversations/{id}.
type SendMessageRequest struct {
	Content          string      `json:"content"`
	ContentType      ContentType `json:"contentType"`
	FileURL          *string     `json:"fileUrl"`
	ReplyTo          *string     `json:"replyTo"`
	ExpiresInSeconds *int64      `json:"expiresInSeconds"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// CreateConversationResult tells callers whether a direct conversation already existed.
type CreateConversationResult struct {
	Conversation *Conversation `json:"conversation"`
	ID           string        `json:"id"`
	Existing     bool          `json:"existing"`
}
