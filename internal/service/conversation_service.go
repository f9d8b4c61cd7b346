package service

import (
	"context"
	"errors"
	"slices"
	"sort"

	"LanChat/internal/apperror"
	"LanChat/internal/event"
	"LanChat/internal/model"
	"LanChat/internal/repo"

	"go.uber.org/zap"
)

// CreateConversation creates a group, or returns the direct conversation of
// the pair when one exists already.
func (s *ChatService) CreateConversation(ctx context.Context, requesterID string, req model.CreateConversationRequest) (model.CreateConversationResult, error) {
	conv, existing, err := s.createConversation(ctx, requesterID, req)
	s.record("create_conversation", err)
	if err != nil {
		return model.CreateConversationResult{}, err
	}
	return model.CreateConversationResult{Conversation: conv, ID: conv.ID, Existing: existing}, nil
}

func (s *ChatService) createConversation(ctx context.Context, requesterID string, req model.CreateConversationRequest) (*model.Conversation, bool, error) {
	if req.ParticipantIDs == nil || slices.Contains(req.ParticipantIDs, "") {
		return nil, false, apperror.ErrParticipantsRequired
	}

	ids := model.NormalizeParticipants(requesterID, req.ParticipantIDs)
	if !req.IsGroup && len(ids) != 2 {
		return nil, false, apperror.ErrDirectNeedsTwo
	}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	if !req.IsGroup {
		found, err := s.conversations.FindDirect(ctx, ids[0], ids[1])
		if err == nil {
			return found, true, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, false, repo.Translate(err, apperror.ErrConversationNotFound)
		}
	}

	conv := &model.Conversation{
		ParticipantIDs: ids,
		IsGroup:        req.IsGroup,
		GroupAdmins:    []string{},
		CreatedAt:      s.now(),
	}
	if req.IsGroup {
		creator := requesterID
		conv.GroupAdmins = []string{requesterID}
		conv.CreatorID = &creator
		conv.Name = req.Name
		conv.Description = req.Description
	}

	err := s.conversations.Create(ctx, conv)
	if errors.Is(err, repo.ErrConflict) {
		// lost a race with a concurrent creation of the same pair
		found, ferr := s.conversations.FindDirect(ctx, ids[0], ids[1])
		if ferr != nil {
			return nil, false, repo.Translate(ferr, apperror.ErrConversationNotFound)
		}
		return found, true, nil
	}
	if err != nil {
		s.logger.Error("failed to create conversation", zap.String("requesterId", requesterID), zap.Error(err))
		return nil, false, repo.Translate(err, apperror.ErrConversationNotFound)
	}

	s.logger.Info("conversation created",
		zap.String("conversationId", conv.ID),
		zap.Bool("isGroup", conv.IsGroup),
		zap.Int("participants", len(ids)),
	)

	others := Filter(ids, func(id string) bool { return id != requesterID })
	s.emit(others, event.New(event.EventConversationNew, model.ConversationChanged{
		ConversationID: conv.ID,
		ActorID:        requesterID,
		Conversation:   conv,
	}))
	return conv, false, nil
}

// ManageParticipants applies a membership action to a group conversation.
// Checks run in order: participant, group, admin.
func (s *ChatService) ManageParticipants(ctx context.Context, conversationID, requesterID string, req model.ManageParticipantsRequest) (*model.Conversation, error) {
	conv, err := s.manageParticipants(ctx, conversationID, requesterID, req)
	s.record("manage_participants", err)
	return conv, err
}

func (s *ChatService) manageParticipants(ctx context.Context, conversationID, requesterID string, req model.ManageParticipantsRequest) (*model.Conversation, error) {
	if !req.Action.Valid() {
		return nil, apperror.ErrInvalidAction
	}
	if req.Action != model.ActionLeave && (len(req.ParticipantIDs) == 0 || slices.Contains(req.ParticipantIDs, "")) {
		return nil, apperror.ErrParticipantsRequired
	}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	unlock := s.seq.lock(conversationID)
	defer unlock()

	var before []string
	updated, err := s.conversations.UpdateMembership(ctx, conversationID, func(c *model.Conversation) error {
		if !c.HasParticipant(requesterID) {
			return apperror.ErrNotParticipant
		}
		if !c.IsGroup {
			return apperror.ErrGroupOnly
		}
		if req.Action.RequiresAdmin() && !c.IsAdmin(requesterID) {
			return apperror.ErrNotGroupAdmin
		}
		before = slices.Clone(c.ParticipantIDs)
		return applyAction(c, requesterID, req)
	})
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrConversationNotFound)
	}

	s.logger.Info("participants updated",
		zap.String("conversationId", conversationID),
		zap.String("action", string(req.Action)),
		zap.String("requesterId", requesterID),
	)

	s.emit(union(before, updated.ParticipantIDs), event.New(event.EventConversationUpdated, model.ConversationChanged{
		ConversationID: updated.ID,
		Action:         req.Action,
		ActorID:        requesterID,
		Conversation:   updated,
	}))
	return updated, nil
}

func applyAction(c *model.Conversation, requesterID string, req model.ManageParticipantsRequest) error {
	ids := req.ParticipantIDs
	notIn := func(set []string) func(string) bool {
		return func(id string) bool { return !slices.Contains(set, id) }
	}

	switch req.Action {
	case model.ActionAdd:
		c.ParticipantIDs = union(c.ParticipantIDs, ids)
	case model.ActionRemove:
		c.ParticipantIDs = Filter(c.ParticipantIDs, notIn(ids))
		c.GroupAdmins = Filter(c.GroupAdmins, notIn(ids))
	case model.ActionLeave:
		self := []string{requesterID}
		c.ParticipantIDs = Filter(c.ParticipantIDs, notIn(self))
		c.GroupAdmins = Filter(c.GroupAdmins, notIn(self))
	case model.ActionPromote:
		for _, id := range ids {
			if !c.HasParticipant(id) {
				return apperror.ErrPromoteNonParticipant
			}
		}
		c.GroupAdmins = union(c.GroupAdmins, ids)
	case model.ActionDemote:
		c.GroupAdmins = Filter(c.GroupAdmins, notIn(ids))
	}

	if c.ParticipantIDs == nil {
		c.ParticipantIDs = []string{}
	}
	if c.GroupAdmins == nil {
		c.GroupAdmins = []string{}
	}
	return nil
}

// ListConversations returns the user's conversations, most recently active
// first, with profiles, unread counts and a last message preview.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	ctx, cancel := s.readContext(ctx)
	defer cancel()

	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrConversationNotFound)
	}
	if len(convs) == 0 {
		return []model.ConversationSummary{}, nil
	}

	convIDs := make([]string, 0, len(convs))
	lastIDs := make([]string, 0, len(convs))
	var people []string
	for _, c := range convs {
		convIDs = append(convIDs, c.ID)
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
		people = union(people, c.ParticipantIDs)
	}

	counts, err := s.messages.UnreadCounts(ctx, userID, convIDs)
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrConversationNotFound)
	}
	last, err := s.messages.FindByIDs(ctx, lastIDs)
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrMessageNotFound)
	}
	profiles := s.profiles(ctx, people)
	now := s.now()

	out := make([]model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := model.ConversationSummary{
			ID:            c.ID,
			Name:          c.Name,
			Description:   c.Description,
			IsGroup:       c.IsGroup,
			GroupAdmins:   c.GroupAdmins,
			CreatorID:     c.CreatorID,
			Participants:  make([]model.UserProfile, 0, len(c.ParticipantIDs)),
			LastMessageAt: c.LastMessageAt,
			UnreadCount:   counts[c.ID],
			CreatedAt:     c.CreatedAt,
		}
		for _, id := range c.ParticipantIDs {
			summary.Participants = append(summary.Participants, profiles[id])
		}
		if c.LastMessageID != nil {
			if m, ok := last[*c.LastMessageID]; ok && !m.Expired(now) {
				text, kind := m.Preview()
				summary.LastMessage = &text
				summary.LastMessageType = &kind
				summary.LastMessageSenderID = &m.SenderID
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// IsParticipant reports whether userID belongs to the conversation. Unknown
// conversations are reported as not found.
func (s *ChatService) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	ctx, cancel := s.readContext(ctx)
	defer cancel()

	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return false, repo.Translate(err, apperror.ErrConversationNotFound)
	}
	return conv.HasParticipant(userID), nil
}

// loadAsParticipant fetches the conversation and checks membership.
func (s *ChatService) loadAsParticipant(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrConversationNotFound)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperror.ErrNotParticipant
	}
	return conv, nil
}

// union keeps a's order and appends unseen ids of b, sorted.
func union(a, b []string) []string {
	out := slices.Clone(a)
	var extra []string
	for _, id := range b {
		if !slices.Contains(out, id) && !slices.Contains(extra, id) {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
