package hub

import (
	"LanChat/internal/event"
	"LanChat/internal/model"

	"go.uber.org/zap"
)

// -----------------------------------------------------------------
// Delivery helpers. Callers hold r.mu.
// -----------------------------------------------------------------

// peerConnections returns the connections that should hear what fromUser says in s.
func (r *CallRelay) peerConnections(s *model.CallSession, fromUser string) []*Client {
	if fromUser == s.CallerID && !s.Connected {
		return r.hub.UserConnections(s.CalleeID)
	}

	connID := s.CallerConnID
	if fromUser == s.CallerID {
		connID = s.CalleeConnID
	}
	if c, ok := r.hub.Client(connID); ok {
		return []*Client{c}
	}
	return nil
}

func (r *CallRelay) sendToPeer(s *model.CallSession, fromUser string, ev event.WsEvent) {
	peers := r.peerConnections(s, fromUser)
	if len(peers) == 0 {
		r.logger.Debug("call peer has no live connection", zap.String("from", fromUser), zap.String("event", ev.Event))
	}
	for _, c := range peers {
		c.Send(ev)
	}
}

func (r *CallRelay) sendEnd(c *Client, from, reason string) {
	c.Send(event.New(event.EventCallEnd, model.CallEnd{From: from, Reason: reason}))
}

func (r *CallRelay) sendCallError(c *Client, targetID, code, message string) {
	c.Send(event.New(event.EventCallError, model.CallError{TargetID: targetID, Code: code, Message: message}))
}

// stopRinging tells the callee devices other than except that the call is over.
func (r *CallRelay) stopRinging(s *model.CallSession, except, reason string) {
	for _, c := range r.hub.UserConnections(s.CalleeID) {
		if c.ID != except {
			r.sendEnd(c, s.CallerID, reason)
		}
	}
}
