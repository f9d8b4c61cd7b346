package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"` // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"`
	Channels    ChannelStats    `json:"channels"`
	Calls       CallStats       `json:"calls"`
	Clients     []ClientInfo    `json:"clients"`
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"`
	Authenticated  int `json:"authenticated"`
	Anonymous      int `json:"anonymous"`
	UniqueUsers    int `json:"uniqueUsers"`
}

// ChannelStats holds fan-out channel statistics
type ChannelStats struct {
	TotalChannels  int           `json:"totalChannels"`
	ChannelDetails []ChannelInfo `json:"channelDetails"`
}

type ChannelInfo struct {
	Name        string `json:"name"`
	Connections int    `json:"connections"`
}

// CallStats holds active call statistics
type CallStats struct {
	TotalActiveCalls int        `json:"totalActiveCalls"`
	CallDetails      []CallInfo `json:"callDetails"`
}

type CallInfo struct {
	CallerID  string `json:"callerId"`
	CalleeID  string `json:"calleeId"`
	IsVideo   bool   `json:"isVideo"`
	State     string `json:"state"`
	StartedAt string `json:"startedAt"` // ISO timestamp
}

// ClientInfo contains information about a connected client
type ClientInfo struct {
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
	Role      string `json:"role,omitempty"`
	Channels  int    `json:"channels"`
}
