package hub

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"LanChat/internal/apperror"
	"LanChat/internal/auth"
	"LanChat/internal/cache"
	"LanChat/internal/event"
	"LanChat/internal/model"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const maxStatusLength = 32

// Membership answers whether a user belongs to a conversation.
type Membership interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// SocketHandlers implements the session and ephemeral state events of the
// event channel: authentication, conversation views, typing and presence.
type SocketHandlers struct {
	hub       *Hub
	cache     *cache.Cache
	verifier  auth.Verifier
	members   Membership
	clock     clockwork.Clock
	logger    *zap.Logger
	opTimeout time.Duration
}

func NewSocketHandlers(h *Hub, c *cache.Cache, verifier auth.Verifier, members Membership, clock clockwork.Clock, logger *zap.Logger) *SocketHandlers {
	return &SocketHandlers{
		hub:       h,
		cache:     c,
		verifier:  verifier,
		members:   members,
		clock:     clock,
		logger:    logger,
		opTimeout: 5 * time.Second,
	}
}

func (s *SocketHandlers) Register() {
	s.hub.Handle(event.EventAuthenticate, s.authenticate)
	s.hub.HandleAuthenticated(event.EventConversationJoin, s.joinConversation)
	s.hub.HandleAuthenticated(event.EventConversationLeave, s.leaveConversation)
	s.hub.HandleAuthenticated(event.EventTypingStart, s.typing(true))
	s.hub.HandleAuthenticated(event.EventTypingStop, s.typing(false))
	s.hub.HandleAuthenticated(event.EventPresenceUpdate, s.updatePresence)
	s.hub.OnDisconnect(s.disconnected)
}

func (s *SocketHandlers) authenticate(ctx context.Context, c *Client, ev event.WsEvent) {
	var p event.TokenPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		c.Send(event.New(event.EventAuthenticated, event.Authenticated{Error: "Invalid token"}))
		return
	}

	id, err := s.verifier.Verify(ctx, p.Token)
	if err != nil {
		s.logger.Info("socket authentication failed", zap.String("clientId", c.ID), zap.Error(err))
		c.Send(event.New(event.EventAuthenticated, event.Authenticated{Error: "Invalid token"}))
		return
	}

	if current, ok := c.Identity(); ok {
		if current.UserID != id.UserID {
			c.Send(event.New(event.EventAuthenticated, event.Authenticated{Error: "Connection already authenticated"}))
			return
		}
		c.Send(event.New(event.EventAuthenticated, event.Authenticated{Success: true, User: current.Public()}))
		return
	}

	if _, err := s.hub.Bind(c, id); err != nil {
		s.logger.Debug("connection closed during authentication", zap.String("clientId", c.ID), zap.String("userId", id.UserID))
		return
	}
	c.Send(event.New(event.EventAuthenticated, event.Authenticated{Success: true, User: id.Public()}))
	s.setPresence(ctx, c, id, model.PresenceOnline)
}

func (s *SocketHandlers) joinConversation(ctx context.Context, c *Client, ev event.WsEvent) {
	var ref event.ConversationRef
	if err := json.Unmarshal(ev.Payload, &ref); err != nil || ref.ConversationID == "" {
		c.SendError(string(apperror.CodeInvalidArgument), "conversationId is required", ev.Event)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	ok, err := s.members.IsParticipant(ctx, ref.ConversationID, c.UserID())
	if err != nil {
		c.SendError(string(apperror.CodeOf(err)), apperror.PublicMessage(err), ev.Event)
		return
	}
	if !ok {
		c.SendError(string(apperror.CodePermissionDenied), apperror.PublicMessage(apperror.ErrNotParticipant), ev.Event)
		return
	}

	if !s.hub.Join(c, ConversationChannel(ref.ConversationID)) {
		return
	}

	typing, err := s.cache.GetTyping(ctx, ref.ConversationID)
	if err != nil {
		s.logger.Warn("typing lookup failed", zap.String("conversationId", ref.ConversationID), zap.Error(err))
	}
	c.Send(event.New(event.EventConversationJoined, event.ConversationJoined{
		ConversationID: ref.ConversationID,
		Typing:         others(typing, c.UserID()),
	}))
}

func (s *SocketHandlers) leaveConversation(_ context.Context, c *Client, ev event.WsEvent) {
	var ref event.ConversationRef
	if err := json.Unmarshal(ev.Payload, &ref); err != nil || ref.ConversationID == "" {
		c.SendError(string(apperror.CodeInvalidArgument), "conversationId is required", ev.Event)
		return
	}
	s.hub.Leave(c, ConversationChannel(ref.ConversationID))
}

func (s *SocketHandlers) typing(isTyping bool) HandlerFunc {
	return func(ctx context.Context, c *Client, ev event.WsEvent) {
		var ref event.ConversationRef
		if err := json.Unmarshal(ev.Payload, &ref); err != nil || ref.ConversationID == "" {
			c.SendError(string(apperror.CodeInvalidArgument), "conversationId is required", ev.Event)
			return
		}

		channel := ConversationChannel(ref.ConversationID)
		if !c.InChannel(channel) {
			c.SendError(string(apperror.CodePermissionDenied), "Join the conversation first", ev.Event)
			return
		}

		userID := c.UserID()
		var err error
		if isTyping {
			err = s.cache.SetTyping(ctx, ref.ConversationID, userID)
		} else {
			err = s.cache.ClearTyping(ctx, ref.ConversationID, userID)
		}
		if err != nil {
			s.logger.Warn("typing update failed", zap.String("conversationId", ref.ConversationID), zap.Error(err))
		}

		s.hub.Publish(channel, event.New(event.EventTypingUpdate, model.TypingIndicator{
			ConversationID: ref.ConversationID,
			UserID:         userID,
			IsTyping:       isTyping,
		}), c)
	}
}

func (s *SocketHandlers) updatePresence(ctx context.Context, c *Client, ev event.WsEvent) {
	var p event.StatusPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		c.SendError(string(apperror.CodeInvalidArgument), "status is required", ev.Event)
		return
	}
	status := strings.TrimSpace(p.Status)
	if status == "" || len(status) > maxStatusLength {
		c.SendError(string(apperror.CodeInvalidArgument), "status must be 1 to 32 characters", ev.Event)
		return
	}

	id, _ := c.Identity()
	s.setPresence(ctx, c, id, status)
}

// disconnected marks the user offline once their last connection is gone.
func (s *SocketHandlers) disconnected(c *Client, last bool) {
	if !last {
		return
	}
	id, ok := c.Identity()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	s.setPresence(ctx, nil, id, model.PresenceOffline)
}

// setPresence caches status and tells the company, except origin.
func (s *SocketHandlers) setPresence(ctx context.Context, origin *Client, id auth.Identity, status string) {
	if err := s.cache.SetPresence(ctx, id.UserID, status); err != nil {
		s.logger.Warn("presence update failed", zap.String("userId", id.UserID), zap.Error(err))
	}

	s.hub.Publish(CompanyChannel(id.CompanyID), event.New(event.EventPresenceChange, model.PresenceChange{
		UserID:    id.UserID,
		Status:    status,
		Timestamp: s.clock.Now().UTC(),
	}), origin)
}

func others(ids []string, self string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
