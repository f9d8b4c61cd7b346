package hub

import (
	"sort"
	"sync"
	"time"

	"LanChat/internal/event"
	"LanChat/internal/metrics"
	"LanChat/internal/model"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// CallRelay relays WebRTC signaling between two users and tracks one
// pairing per user. Nothing here is persisted.
type CallRelay struct {
	hub     *Hub
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*model.CallSession // keyed by the sorted user pair
	byUser   map[string]string
}

func NewCallRelay(h *Hub, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics) *CallRelay {
	return &CallRelay{
		hub:      h,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*model.CallSession),
		byUser:   make(map[string]string),
	}
}

// Register installs the call handlers and the disconnect hook on the hub.
func (r *CallRelay) Register() {
	r.hub.HandleAuthenticated(event.EventCallOffer, r.handleOffer)
	r.hub.HandleAuthenticated(event.EventCallAnswer, r.handleAnswer)
	r.hub.HandleAuthenticated(event.EventCallIceCandidate, r.handleIceCandidate)
	r.hub.HandleAuthenticated(event.EventCallEnd, r.handleEnd)
	r.hub.OnDisconnect(r.onDisconnect)
}

// StateOf returns the call state of userID.
func (r *CallRelay) StateOf(userID string) model.CallState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessionOf(userID)
	if !ok {
		return model.CallIdle
	}
	return s.StateOf(userID)
}

// Sessions returns copies of the active pairings, oldest first.
func (r *CallRelay) Sessions() []model.CallSession {
	r.mu.Lock()
	out := make([]model.CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// -----------------------------------------------------------------
// Pairing bookkeeping. Callers hold r.mu.
// -----------------------------------------------------------------

func (r *CallRelay) sessionOf(userID string) (*model.CallSession, bool) {
	key, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[key]
	return s, ok
}

func (r *CallRelay) pairing(a, b string) (*model.CallSession, bool) {
	s, ok := r.sessions[model.DirectKey(a, b)]
	return s, ok
}

func (r *CallRelay) start(callerID, calleeID, callerConnID string, isVideo bool) *model.CallSession {
	s := &model.CallSession{
		CallerID:     callerID,
		CalleeID:     calleeID,
		IsVideo:      isVideo,
		CallerConnID: callerConnID,
		StartedAt:    r.clock.Now().UTC(),
	}
	key := model.DirectKey(callerID, calleeID)
	r.sessions[key] = s
	r.byUser[callerID] = key
	r.byUser[calleeID] = key
	r.metrics.ActiveCalls.Set(float64(len(r.sessions)))
	return s
}

func (r *CallRelay) connect(s *model.CallSession, calleeConnID string) {
	now := r.clock.Now().UTC()
	s.Connected = true
	s.ConnectedAt = &now
	s.CalleeConnID = calleeConnID
}

func (r *CallRelay) release(s *model.CallSession, reason string) {
	delete(r.sessions, model.DirectKey(s.CallerID, s.CalleeID))
	delete(r.byUser, s.CallerID)
	delete(r.byUser, s.CalleeID)
	r.metrics.ActiveCalls.Set(float64(len(r.sessions)))

	var duration time.Duration
	if s.ConnectedAt != nil {
		duration = r.clock.Since(*s.ConnectedAt)
	}
	r.logger.Info("call ended",
		zap.String("callerId", s.CallerID),
		zap.String("calleeId", s.CalleeID),
		zap.String("reason", reason),
		zap.Duration("duration", duration),
	)
}

// owns reports whether c is the connection speaking for its user in s.
// While ringing every device of the callee may speak.
func owns(s *model.CallSession, c *Client) bool {
	switch c.UserID() {
	case s.CallerID:
		return c.ID == s.CallerConnID
	case s.CalleeID:
		return !s.Connected || c.ID == s.CalleeConnID
	}
	return false
}
