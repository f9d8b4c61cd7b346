package model

import (
	"encoding/json"
	"time"
)

// CallState is one side's view of a call pairing.
type CallState string

const (
	CallIdle      CallState = "idle"
	CallCalling   CallState = "calling"
	CallReceiving CallState = "receiving"
	CallConnected CallState = "connected"
)

// CallSession is the in-memory pairing between a caller and a callee. Never persisted.
type CallSession struct {
	CallerID     string     `json:"callerId"`
	CalleeID     string     `json:"calleeId"`
	IsVideo      bool       `json:"isVideo"`
	Connected    bool       `json:"connected"`
	CallerConnID string     `json:"-"`
	CalleeConnID string     `json:"-"`
	StartedAt    time.Time  `json:"startedAt"`
	ConnectedAt  *time.Time `json:"connectedAt,omitempty"`
}

// StateOf returns the state of userID inside the session.
func (s *CallSession) StateOf(userID string) CallState {
	switch {
	case userID != s.CallerID && userID != s.CalleeID:
		return CallIdle
	case s.Connected:
		return CallConnected
	case userID == s.CallerID:
		return CallCalling
	default:
		return CallReceiving
	}
}

// Peer returns the other side of the pairing.
func (s *CallSession) Peer(userID string) string {
	if userID == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

// -----------------------------------------------------------------
// WebSocket Event Payloads - Client to Server
// -----------------------------------------------------------------

// CallOfferRequest starts a call. Offer is an RTCSessionDescription.
type CallOfferRequest struct {
	TargetID string          `json:"targetId"`
	Offer    json.RawMessage `json:"offer"`
	IsVideo  *bool           `json:"isVideo,omitempty"`
}

// CallAnswerRequest accepts a call. Answer is an RTCSessionDescription.
type CallAnswerRequest struct {
	TargetID string          `json:"targetId"`
	Answer   json.RawMessage `json:"answer"`
}

// CallIceRequest relays an RTCIceCandidateInit to the peer.
type CallIceRequest struct {
	TargetID  string          `json:"targetId"`
	Candidate json.RawMessage `json:"candidate"`
}

// CallEndRequest hangs up, rejects or cancels.
type CallEndRequest struct {
	TargetID string `json:"targetId"`
	Reason   string `json:"reason,omitempty"`
}

// -----------------------------------------------------------------
// WebSocket Event Payloads - Server to Client
// -----------------------------------------------------------------

type CallOffer struct {
	From     string          `json:"from"`
	FromName string          `json:"fromName,omitempty"`
	Offer    json.RawMessage `json:"offer"`
	IsVideo  bool            `json:"isVideo"`
}

type CallAnswer struct {
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer"`
}

type CallIceCandidate struct {
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallEnd struct {
	From   string `json:"from"`
	Reason string `json:"reason"`
}

type CallError struct {
	TargetID string `json:"targetId,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}
