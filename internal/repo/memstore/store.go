// Package memstore keeps conversations and messages in process memory. It backs
// the "memory" database driver for single-node development and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"LanChat/internal/model"
	"LanChat/internal/repo"

	"github.com/google/uuid"
)

// Store is one mutex over every table, so each read-modify-write is serialized.
type Store struct {
	mu             sync.RWMutex
	conversations  map[string]*model.Conversation
	direct         map[string]string // direct key -> conversation id
	messages       map[string]*model.Message
	byConversation map[string][]string // message ids in insertion order
	users          map[string]model.UserProfile
}

func New() *Store {
	return &Store{
		conversations:  make(map[string]*model.Conversation),
		direct:         make(map[string]string),
		messages:       make(map[string]*model.Message),
		byConversation: make(map[string][]string),
		users:          make(map[string]model.UserProfile),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() repo.Store {
	return repo.Store{
		Conversations: &conversationRepository{s: s},
		Messages:      &messageRepository{s: s},
		Users:         &userRepository{s: s},
		Ping:          func(context.Context) error { return nil },
		Close:         func(context.Context) error { return nil },
	}
}

// AddUser seeds the user directory.
func (s *Store) AddUser(p model.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[p.ID] = p
}

// -----------------------------------------------------------------------------
// Conversations
// -----------------------------------------------------------------------------

type conversationRepository struct {
	s *Store
}

func (r *conversationRepository) Create(_ context.Context, c *model.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := c.DirectKey()
	if key != "" {
		if _, exists := r.s.direct[key]; exists {
			return repo.ErrConflict
		}
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.GroupAdmins == nil {
		c.GroupAdmins = []string{}
	}
	r.s.conversations[c.ID] = c.Clone()
	if key != "" {
		r.s.direct[key] = c.ID
	}
	return nil
}

func (r *conversationRepository) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.conversations[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *conversationRepository) FindDirect(_ context.Context, a, b string) (*model.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.direct[model.DirectKey(a, b)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return r.s.conversations[id].Clone(), nil
}

func (r *conversationRepository) ListForUser(_ context.Context, userID string) ([]model.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.Conversation, 0)
	for _, c := range r.s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *c.Clone())
		}
	}
	sortByActivity(out)
	return out, nil
}

func (r *conversationRepository) UpdateMembership(_ context.Context, id string, fn func(*model.Conversation) error) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.conversations[id]
	if !ok {
		return nil, repo.ErrNotFound
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	cur.ParticipantIDs = next.ParticipantIDs
	cur.GroupAdmins = next.GroupAdmins
	return cur.Clone(), nil
}

// sortByActivity orders by last message (newest first, never-messaged last), then creation.
func sortByActivity(cs []model.Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i].LastMessageAt, cs[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type messageRepository struct {
	s *Store
}

func (r *messageRepository) Insert(_ context.Context, m *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conv, ok := r.s.conversations[m.ConversationID]
	if !ok {
		return repo.ErrNotFound
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Reactions == nil {
		m.Reactions = model.Reactions{}
	}
	r.s.messages[m.ID] = m.Clone()
	r.s.byConversation[m.ConversationID] = append(r.s.byConversation[m.ConversationID], m.ID)

	if conv.LastMessageAt == nil || !conv.LastMessageAt.After(m.CreatedAt) {
		id, at := m.ID, m.CreatedAt
		conv.LastMessageID = &id
		conv.LastMessageAt = &at
	}
	return nil
}

func (r *messageRepository) FindByID(_ context.Context, id string) (*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *messageRepository) FindByIDs(_ context.Context, ids []string) (map[string]*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]*model.Message, len(ids))
	for _, id := range ids {
		if m, ok := r.s.messages[id]; ok {
			out[id] = m.Clone()
		}
	}
	return out, nil
}

func (r *messageRepository) ListBefore(_ context.Context, conversationID string, cursor *time.Time, now time.Time, limit int) ([]model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.byConversation[conversationID]
	out := make([]model.Message, 0, limit)
	// newest first; insertion order breaks createdAt ties
	candidates := make([]*model.Message, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		m, ok := r.s.messages[ids[i]]
		if !ok {
			continue
		}
		if cursor != nil && !m.CreatedAt.Before(*cursor) {
			continue
		}
		if m.Expired(now) {
			continue
		}
		candidates = append(candidates, m)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	for _, m := range candidates {
		if len(out) == limit {
			break
		}
		out = append(out, *m.Clone())
	}
	return out, nil
}

func (r *messageRepository) UpdateContent(_ context.Context, id, content string, editedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return repo.ErrNotFound
	}
	if m.IsDeleted {
		return repo.ErrConflict
	}
	m.Content = content
	m.EditedAt = &editedAt
	return nil
}

func (r *messageRepository) SoftDelete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	return true, nil
}

func (r *messageRepository) ToggleReaction(_ context.Context, id, userID, emoji string) (model.Reactions, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if m.Reactions == nil {
		m.Reactions = model.Reactions{}
	}
	m.Reactions.Toggle(emoji, userID)
	return m.Reactions.Clone(), nil
}

func (r *messageRepository) MarkRead(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return repo.ErrNotFound
	}
	m.IsRead = true
	m.ReadAt = &at
	return nil
}

func (r *messageRepository) UnreadCounts(_ context.Context, userID string, conversationIDs []string) (map[string]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[string]int64, len(conversationIDs))
	for _, cid := range conversationIDs {
		var n int64
		for _, mid := range r.s.byConversation[cid] {
			m := r.s.messages[mid]
			if m != nil && !m.IsRead && !m.IsDeleted && m.SenderID != userID {
				n++
			}
		}
		counts[cid] = n
	}
	return counts, nil
}

func (r *messageRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	removed := make(map[string]struct{})
	for id, m := range r.s.messages {
		if m.ExpiresAt != nil && m.ExpiresAt.Before(cutoff) {
			removed[id] = struct{}{}
			delete(r.s.messages, id)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}

	for cid, ids := range r.s.byConversation {
		kept := ids[:0]
		for _, id := range ids {
			if _, gone := removed[id]; !gone {
				kept = append(kept, id)
			}
		}
		r.s.byConversation[cid] = kept
	}
	for _, c := range r.s.conversations {
		if c.LastMessageID != nil {
			if _, gone := removed[*c.LastMessageID]; gone {
				c.LastMessageID = nil
			}
		}
	}
	for _, m := range r.s.messages {
		if m.ReplyTo != nil {
			if _, gone := removed[*m.ReplyTo]; gone {
				m.ReplyTo = nil
			}
		}
	}
	return int64(len(removed)), nil
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

type userRepository struct {
	s *Store
}

func (r *userRepository) FindProfiles(_ context.Context, ids []string) (map[string]model.UserProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]model.UserProfile, len(ids))
	for _, id := range ids {
		if p, ok := r.s.users[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
