package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"LanChat/internal/apperror"
	"LanChat/internal/event"
	"LanChat/internal/model"
	"LanChat/internal/repo"

	"go.uber.org/zap"
)

// SendMessage persists a message from a participant and notifies the other
// participants. The returned view carries sender display fields.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, senderID string, req model.SendMessageRequest) (*model.MessageView, error) {
	view, err := s.sendMessage(ctx, conversationID, senderID, req)
	s.record("send_message", err)
	return view, err
}

func (s *ChatService) sendMessage(ctx context.Context, conversationID, senderID string, req model.SendMessageRequest) (*model.MessageView, error) {
	if req.ContentType == "" {
		req.ContentType = model.ContentText
	}
	if err := validateSend(req); err != nil {
		return nil, err
	}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	conv, err := s.loadAsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	if req.ReplyTo != nil {
		parent, err := s.messages.FindByID(ctx, *req.ReplyTo)
		if err != nil {
			return nil, repo.Translate(err, apperror.ErrInvalidReply)
		}
		if parent.ConversationID != conv.ID {
			return nil, apperror.ErrInvalidReply
		}
	}

	unlock := s.seq.lock(conv.ID)
	defer unlock()

	now := s.now()
	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        req.Content,
		ContentType:    req.ContentType,
		ReplyTo:        req.ReplyTo,
		Reactions:      model.Reactions{},
		CreatedAt:      now,
	}
	if req.ContentType.NeedsFile() {
		msg.FileURL = req.FileURL
	}
	if req.ExpiresInSeconds != nil {
		at := now.Add(time.Duration(*req.ExpiresInSeconds) * time.Second)
		msg.ExpiresAt = &at
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		s.logger.Error("failed to send message",
			zap.String("conversationId", conv.ID),
			zap.String("senderId", senderID),
			zap.Error(err),
		)
		return nil, repo.Translate(err, apperror.ErrConversationNotFound)
	}

	view := model.Present(*msg, s.profiles(ctx, []string{senderID})[senderID])
	others := Filter(conv.ParticipantIDs, func(id string) bool { return id != senderID })
	s.emit(others, event.New(event.EventMessageNew, view))

	s.logger.Debug("message sent",
		zap.String("messageId", msg.ID),
		zap.String("conversationId", conv.ID),
		zap.Int("recipients", len(others)),
	)
	return &view, nil
}

func validateSend(req model.SendMessageRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return apperror.ErrEmptyContent
	}
	if !req.ContentType.Sendable() {
		return apperror.ErrInvalidContentType
	}
	if req.ContentType.NeedsFile() && (req.FileURL == nil || strings.TrimSpace(*req.FileURL) == "") {
		return apperror.ErrFileURLRequired
	}
	if req.ExpiresInSeconds != nil && *req.ExpiresInSeconds <= 0 {
		return apperror.ErrInvalidExpiry
	}
	return nil
}

// EditMessage replaces the content of the requester's own, undeleted message.
func (s *ChatService) EditMessage(ctx context.Context, messageID, requesterID, content string) (*model.MessageEdited, error) {
	edited, err := s.editMessage(ctx, messageID, requesterID, content)
	s.record("edit_message", err)
	return edited, err
}

func (s *ChatService) editMessage(ctx context.Context, messageID, requesterID, content string) (*model.MessageEdited, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ErrEmptyContent
	}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	msg, err := s.loadOwnMessage(ctx, messageID, requesterID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperror.ErrMessageDeleted
	}

	unlock := s.seq.lock(msg.ConversationID)
	defer unlock()

	now := s.now()
	if err := s.messages.UpdateContent(ctx, messageID, content, now); err != nil {
		if errorsIsConflict(err) {
			return nil, apperror.ErrMessageDeleted
		}
		return nil, repo.Translate(err, apperror.ErrMessageNotFound)
	}

	edited := &model.MessageEdited{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		Content:        content,
		EditedAt:       now,
	}
	s.emitToParticipants(ctx, msg.ConversationID, event.New(event.EventMessageEdited, edited))
	return edited, nil
}

// DeleteMessage soft deletes the requester's own message. Deleting twice is a
// successful no-op and does not notify anyone again.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	err := s.deleteMessage(ctx, messageID, requesterID)
	s.record("delete_message", err)
	return err
}

func (s *ChatService) deleteMessage(ctx context.Context, messageID, requesterID string) error {
	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	msg, err := s.loadOwnMessage(ctx, messageID, requesterID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return nil
	}

	unlock := s.seq.lock(msg.ConversationID)
	defer unlock()

	changed, err := s.messages.SoftDelete(ctx, messageID)
	if err != nil {
		return repo.Translate(err, apperror.ErrMessageNotFound)
	}
	if !changed {
		return nil
	}

	s.emitToParticipants(ctx, msg.ConversationID, event.New(event.EventMessageDeleted, model.MessageDeleted{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		Content:        model.DeletedPlaceholder,
		ContentType:    model.ContentDeleted,
	}))
	return nil
}

// ToggleReaction flips the user's reaction and returns the resulting map.
func (s *ChatService) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (model.Reactions, error) {
	reactions, err := s.toggleReaction(ctx, messageID, userID, emoji)
	s.record("toggle_reaction", err)
	return reactions, err
}

func (s *ChatService) toggleReaction(ctx context.Context, messageID, userID, emoji string) (model.Reactions, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return nil, apperror.ErrInvalidEmoji
	}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	msg, conv, err := s.loadVisibleMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.seq.lock(conv.ID)
	defer unlock()

	reactions, err := s.messages.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrMessageNotFound)
	}

	s.emit(conv.ParticipantIDs, event.New(event.EventMessageReaction, model.MessageReaction{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Emoji:          emoji,
		Reactions:      reactions,
	}))
	return reactions, nil
}

// MarkRead records the read and sends a receipt to the sender, unless the
// reader is the sender.
func (s *ChatService) MarkRead(ctx context.Context, messageID, readerID string) error {
	err := s.markRead(ctx, messageID, readerID)
	s.record("mark_read", err)
	return err
}

func (s *ChatService) markRead(ctx context.Context, messageID, readerID string) error {
	ctx, cancel := s.writeContext(ctx)
	defer cancel()

	msg, conv, err := s.loadVisibleMessage(ctx, messageID, readerID)
	if err != nil {
		return err
	}

	unlock := s.seq.lock(conv.ID)
	defer unlock()

	now := s.now()
	if err := s.messages.MarkRead(ctx, messageID, now); err != nil {
		return repo.Translate(err, apperror.ErrMessageNotFound)
	}

	if readerID != msg.SenderID {
		s.emit([]string{msg.SenderID}, event.New(event.EventMessageRead, model.MessageSeen{
			MessageID:      messageID,
			ConversationID: msg.ConversationID,
			ReadBy:         readerID,
			ReadAt:         now,
		}))
	}
	return nil
}

// FetchMessages returns one page, oldest first, of messages created strictly
// before cursor. A nil cursor starts from the newest message.
func (s *ChatService) FetchMessages(ctx context.Context, conversationID, requesterID string, cursor *time.Time, limit int) ([]model.MessageView, error) {
	switch {
	case limit <= 0:
		limit = DefaultFetchLimit
	case limit > MaxFetchLimit:
		limit = MaxFetchLimit
	}

	ctx, cancel := s.readContext(ctx)
	defer cancel()

	if _, err := s.loadAsParticipant(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	now := s.now()
	page, err := s.messages.ListBefore(ctx, conversationID, cursor, now, limit)
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrConversationNotFound)
	}

	page = Filter(page, func(m model.Message) bool { return !m.Expired(now) })
	slices.Reverse(page)

	senders := make([]string, 0, len(page))
	for _, m := range page {
		if !slices.Contains(senders, m.SenderID) {
			senders = append(senders, m.SenderID)
		}
	}
	profiles := s.profiles(ctx, senders)

	out := make([]model.MessageView, 0, len(page))
	for _, m := range page {
		out = append(out, model.Present(m, profiles[m.SenderID]))
	}
	return out, nil
}

// loadOwnMessage fetches a message the requester authored.
func (s *ChatService) loadOwnMessage(ctx context.Context, messageID, requesterID string) (*model.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, repo.Translate(err, apperror.ErrMessageNotFound)
	}
	if msg.SenderID != requesterID {
		return nil, apperror.ErrNotSender
	}
	return msg, nil
}

// loadVisibleMessage fetches a message of a conversation userID participates in.
func (s *ChatService) loadVisibleMessage(ctx context.Context, messageID, userID string) (*model.Message, *model.Conversation, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, nil, repo.Translate(err, apperror.ErrMessageNotFound)
	}
	conv, err := s.loadAsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

// emitToParticipants looks up the current participants; a failed lookup only
// costs the notification.
func (s *ChatService) emitToParticipants(ctx context.Context, conversationID string, ev event.WsEvent) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		s.logger.Warn("skipping fan-out, conversation lookup failed",
			zap.String("conversationId", conversationID),
			zap.String("event", ev.Event),
			zap.Error(err),
		)
		return
	}
	s.emit(conv.ParticipantIDs, ev)
}
