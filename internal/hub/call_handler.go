package hub

import (
	"context"
	"encoding/json"

	"LanChat/internal/event"
	"LanChat/internal/model"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// parseDescription checks that raw is a well-formed session description of
// the wanted type and reports whether it negotiates video.
func parseDescription(raw json.RawMessage, want webrtc.SDPType) (bool, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return false, errors.Wrap(err, "decode session description")
	}
	if desc.Type != want {
		return false, errors.Errorf("expected %s, got %s", want, desc.Type)
	}

	parsed, err := desc.Unmarshal()
	if err != nil {
		return false, errors.Wrap(err, "parse sdp")
	}
	for _, m := range parsed.MediaDescriptions {
		if m.MediaName.Media == "video" {
			return true, nil
		}
	}
	return false, nil
}

func (r *CallRelay) handleOffer(_ context.Context, c *Client, ev event.WsEvent) {
	var req model.CallOfferRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil || req.TargetID == "" {
		r.sendCallError(c, req.TargetID, event.CallErrInvalidPayload, "targetId and offer are required")
		return
	}

	id, _ := c.Identity()
	if req.TargetID == id.UserID {
		r.sendCallError(c, req.TargetID, event.CallErrSelfCall, "You cannot call yourself")
		return
	}

	isVideo, err := parseDescription(req.Offer, webrtc.SDPTypeOffer)
	if err != nil {
		r.logger.Debug("rejecting offer", zap.String("clientId", c.ID), zap.Error(err))
		r.sendCallError(c, req.TargetID, event.CallErrInvalidSDP, "Invalid session description")
		return
	}
	if req.IsVideo != nil {
		isVideo = *req.IsVideo
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// renegotiation inside a live pair
	if s, ok := r.pairing(id.UserID, req.TargetID); ok && s.Connected {
		if !owns(s, c) {
			r.sendCallError(c, req.TargetID, event.CallErrInvalidState, "Call is active on another device")
			return
		}
		r.sendToPeer(s, id.UserID, event.New(event.EventCallOffer, model.CallOffer{
			From: id.UserID, FromName: id.Username, Offer: req.Offer, IsVideo: isVideo,
		}))
		return
	}

	if _, busy := r.sessionOf(id.UserID); busy {
		r.sendCallError(c, req.TargetID, event.CallErrCallerBusy, "You are already in a call")
		return
	}
	if _, busy := r.sessionOf(req.TargetID); busy {
		r.sendEnd(c, req.TargetID, event.CallEndReasonBusy)
		return
	}

	callee := r.hub.UserConnections(req.TargetID)
	if len(callee) == 0 {
		r.sendEnd(c, req.TargetID, event.CallEndReasonUnavailable)
		return
	}

	r.start(id.UserID, req.TargetID, c.ID, isVideo)
	offer := event.New(event.EventCallOffer, model.CallOffer{
		From: id.UserID, FromName: id.Username, Offer: req.Offer, IsVideo: isVideo,
	})
	for _, peer := range callee {
		peer.Send(offer)
	}

	r.logger.Info("call started",
		zap.String("callerId", id.UserID),
		zap.String("calleeId", req.TargetID),
		zap.Bool("isVideo", isVideo),
		zap.Int("calleeDevices", len(callee)),
	)
}

func (r *CallRelay) handleAnswer(_ context.Context, c *Client, ev event.WsEvent) {
	var req model.CallAnswerRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil || req.TargetID == "" {
		r.sendCallError(c, req.TargetID, event.CallErrInvalidPayload, "targetId and answer are required")
		return
	}
	if _, err := parseDescription(req.Answer, webrtc.SDPTypeAnswer); err != nil {
		r.logger.Debug("rejecting answer", zap.String("clientId", c.ID), zap.Error(err))
		r.sendCallError(c, req.TargetID, event.CallErrInvalidSDP, "Invalid session description")
		return
	}

	userID := c.UserID()
	answer := event.New(event.EventCallAnswer, model.CallAnswer{From: userID, Answer: req.Answer})

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.pairing(userID, req.TargetID)
	if !ok {
		r.sendCallError(c, req.TargetID, event.CallErrNotFound, "No call with this user")
		return
	}

	if s.Connected {
		// answer to a renegotiation offer
		if !owns(s, c) {
			r.sendCallError(c, req.TargetID, event.CallErrInvalidState, "Call is active on another device")
			return
		}
		r.sendToPeer(s, userID, answer)
		return
	}

	if userID != s.CalleeID {
		r.sendCallError(c, req.TargetID, event.CallErrInvalidState, "Only the callee can answer")
		return
	}

	r.connect(s, c.ID)
	r.sendToPeer(s, userID, answer)
	r.stopRinging(s, c.ID, event.CallEndReasonAnsweredElsewhere)
}

func (r *CallRelay) handleIceCandidate(_ context.Context, c *Client, ev event.WsEvent) {
	var req model.CallIceRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil || req.TargetID == "" {
		r.sendCallError(c, req.TargetID, event.CallErrInvalidPayload, "targetId and candidate are required")
		return
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(req.Candidate, &candidate); err != nil {
		r.sendCallError(c, req.TargetID, event.CallErrInvalidPayload, "Invalid ICE candidate")
		return
	}

	userID := c.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.pairing(userID, req.TargetID)
	if !ok {
		r.sendCallError(c, req.TargetID, event.CallErrNotFound, "No call with this user")
		return
	}
	if !owns(s, c) {
		r.sendCallError(c, req.TargetID, event.CallErrInvalidState, "Call is active on another device")
		return
	}

	r.sendToPeer(s, userID, event.New(event.EventCallIceCandidate, model.CallIceCandidate{
		From: userID, Candidate: req.Candidate,
	}))
}

func (r *CallRelay) handleEnd(_ context.Context, c *Client, ev event.WsEvent) {
	var req model.CallEndRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil || req.TargetID == "" {
		r.sendCallError(c, req.TargetID, event.CallErrInvalidPayload, "targetId is required")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = event.CallEndReasonHangup
	}

	userID := c.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.pairing(userID, req.TargetID)
	if !ok || !owns(s, c) {
		r.logger.Debug("ignoring call:end without a call", zap.String("userId", userID), zap.String("targetId", req.TargetID))
		return
	}

	r.sendToPeer(s, userID, event.New(event.EventCallEnd, model.CallEnd{From: userID, Reason: reason}))
	if userID == s.CalleeID && !s.Connected {
		r.stopRinging(s, c.ID, reason)
	}
	r.release(s, reason)
}

// onDisconnect ends the pairing when the transport that carries it goes away.
func (r *CallRelay) onDisconnect(c *Client, last bool) {
	userID := c.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessionOf(userID)
	if !ok {
		return
	}

	switch {
	case userID == s.CallerID && c.ID == s.CallerConnID:
	case userID == s.CalleeID && s.Connected && c.ID == s.CalleeConnID:
	case userID == s.CalleeID && !s.Connected && last:
	default:
		return
	}

	r.sendToPeer(s, userID, event.New(event.EventCallEnd, model.CallEnd{
		From: userID, Reason: event.CallEndReasonDisconnected,
	}))
	r.release(s, event.CallEndReasonDisconnected)
}
