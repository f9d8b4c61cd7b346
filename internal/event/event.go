package event

import (
	"encoding/json"
)

// Client to Server
const (
	EventAuthenticate      = "authenticate"
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventPresenceUpdate    = "presence:update"
)

// Server to Client
const (
	EventAuthenticated       = "authenticated"
	EventMessageNew          = "message:new"
	EventMessageEdited       = "message:edited"
	EventMessageDeleted      = "message:deleted"
	EventMessageRead         = "message:read"
	EventMessageReaction     = "message:reaction"
	EventConversationNew     = "conversation:new"
	EventConversationUpdated = "conversation:updated"
	EventConversationJoined  = "conversation:joined"
	EventTypingUpdate        = "typing:update"
	EventPresenceChange      = "presence:change"
	EventError               = "error"
)

// WsEvent is the single frame shape on the event channel in both directions.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New marshals payload into a frame. Payloads are plain structs so marshalling cannot fail.
func New(name string, payload any) WsEvent {
	raw, _ := json.Marshal(payload)
	return WsEvent{Event: name, Payload: raw}
}

// Authenticated is the reply to authenticate.
type Authenticated struct {
	Success bool      `json:"success"`
	User    *Identity `json:"user,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Identity is the public view of the authenticated user on a connection.
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	CompanyID string `json:"companyId"`
	Role      string `json:"role"`
}

// ConversationRef is the payload of conversation:join/leave and typing:start/stop.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// UnmarshalJSON accepts both {"conversationId": "..."} and a bare id string.
func (r *ConversationRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ConversationID = id
		return nil
	}
	type plain ConversationRef
	return json.Unmarshal(data, (*plain)(r))
}

// TokenPayload accepts both a bare token string and {"token": "..."}.
type TokenPayload struct {
	Token string `json:"token"`
}

func (p *TokenPayload) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		p.Token = token
		return nil
	}
	type plain TokenPayload
	return json.Unmarshal(data, (*plain)(p))
}

// StatusPayload accepts both a bare status string and {"status": "..."}.
type StatusPayload struct {
	Status string `json:"status"`
}

func (p *StatusPayload) UnmarshalJSON(data []byte) error {
	var status string
	if err := json.Unmarshal(data, &status); err == nil {
		p.Status = status
		return nil
	}
	type plain StatusPayload
	return json.Unmarshal(data, (*plain)(p))
}

// ConversationJoined confirms conversation:join and carries who is typing right now.
type ConversationJoined struct {
	ConversationID string   `json:"conversationId"`
	Typing         []string `json:"typing"`
}
