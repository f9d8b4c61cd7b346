package model

import (
	"slices"
	"sort"
	"time"
)

// Conversation is a direct (two party) or group chat.
type Conversation struct {
	ID             string     `json:"id"`
	ParticipantIDs []string   `json:"participantIds"`
	IsGroup        bool       `json:"isGroup"`
	GroupAdmins    []string   `json:"groupAdmins"`
	CreatorID      *string    `json:"creatorId"`
	Name           *string    `json:"name"`
	Description    *string    `json:"description"`
	LastMessageID  *string    `json:"lastMessageId"`
	LastMessageAt  *time.Time `json:"lastMessageAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.ParticipantIDs, userID)
}

func (c *Conversation) IsAdmin(userID string) bool {
	return slices.Contains(c.GroupAdmins, userID)
}

// DirectKey returns the dedup key of a direct conversation, empty for groups.
func (c *Conversation) DirectKey() string {
	if c.IsGroup || len(c.ParticipantIDs) != 2 {
		return ""
	}
	return DirectKey(c.ParticipantIDs[0], c.ParticipantIDs[1])
}

// Clone returns a deep copy safe to mutate.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	cp.GroupAdmins = slices.Clone(c.GroupAdmins)
	return &cp
}

// DirectKey is order independent: DirectKey(a, b) == DirectKey(b, a).
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// NormalizeParticipants adds requester, drops blanks and duplicates and sorts the result.
func NormalizeParticipants(requesterID string, ids []string) []string {
	seen := map[string]struct{}{requesterID: {}}
	out := []string{requesterID}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type ParticipantAction string

const (
	ActionAdd     ParticipantAction = "add"
	ActionRemove  ParticipantAction = "remove"
	ActionLeave   ParticipantAction = "leave"
	ActionPromote ParticipantAction = "promote"
	ActionDemote  ParticipantAction = "demote"
)

func (a ParticipantAction) Valid() bool {
	switch a {
	case ActionAdd, ActionRemove, ActionLeave, ActionPromote, ActionDemote:
		return true
	}
	return false
}

// RequiresAdmin reports whether the action is restricted to group admins.
func (a ParticipantAction) RequiresAdmin() bool {
	return a == ActionRemove || a == ActionPromote || a == ActionDemote
}

// ConversationSummary is the enriched row returned by the conversation list.
type ConversationSummary struct {
	ID                  string        `json:"id"`
	Name                *string       `json:"name"`
	Description         *string       `json:"description"`
	IsGroup             bool          `json:"isGroup"`
	GroupAdmins         []string      `json:"groupAdmins"`
	CreatorID           *string       `json:"creatorId"`
	Participants        []UserProfile `json:"participants"`
	LastMessage         *string       `json:"lastMessage"`
	LastMessageType     *ContentType  `json:"lastMessageType"`
	LastMessageSenderID *string       `json:"lastMessageSenderId"`
	LastMessageAt       *time.Time    `json:"lastMessageAt"`
	UnreadCount         int64         `json:"unreadCount"`
	CreatedAt           time.Time     `json:"createdAt"`
}
