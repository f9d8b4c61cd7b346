package model

import "time"

const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceBusy    = "busy"
	PresenceOffline = "offline"
)

// Presence is the cached status of a user. A missing entry means offline.
type Presence struct {
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}
