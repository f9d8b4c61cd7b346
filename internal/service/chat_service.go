package service

import (
	"context"
	"time"

	"LanChat/internal/event"
	"LanChat/internal/metrics"
	"LanChat/internal/model"
	"LanChat/internal/repo"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultFetchLimit = 50
	MaxFetchLimit     = 100
	maxEmojiBytes     = 32

	defaultOpTimeout = 5 * time.Second
)

// Notifier delivers an event to every live connection of a user. It must not
// block and never fails the caller: delivery is best effort.
type Notifier interface {
	EmitToUser(userID string, ev event.WsEvent)
}

type Options struct {
	// OpTimeout bounds every store call made on behalf of one request.
	OpTimeout time.Duration
}

// ChatService implements the conversation and message lifecycle: it
// authorizes, validates, persists and then fans out notifications.
type ChatService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	users         repo.UserRepository
	notifier      Notifier
	clock         clockwork.Clock
	logger        *zap.Logger
	metrics       *metrics.Metrics
	seq           sequencer
	opTimeout     time.Duration
}

func NewChatService(store repo.Store, notifier Notifier, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics, opts Options) *ChatService {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	return &ChatService{
		conversations: store.Conversations,
		messages:      store.Messages,
		users:         store.Users,
		notifier:      notifier,
		clock:         clock,
		logger:        logger,
		metrics:       m,
		opTimeout:     opts.OpTimeout,
	}
}

// now is UTC with millisecond precision, the coarsest precision of the stores.
func (s *ChatService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

// writeContext detaches from the caller: a client hanging up must not abort a
// mutation halfway. The store call is still bounded.
func (s *ChatService) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
}

func (s *ChatService) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *ChatService) emit(userIDs []string, ev event.WsEvent) {
	if s.notifier == nil {
		return
	}
	for _, id := range userIDs {
		s.notifier.EmitToUser(id, ev)
	}
}

func (s *ChatService) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.Mutation(op, err)
	}
}

// profiles never fails: display fields degrade to the bare id.
func (s *ChatService) profiles(ctx context.Context, ids []string) map[string]model.UserProfile {
	found, err := s.users.FindProfiles(ctx, ids)
	if err != nil {
		s.logger.Warn("user directory lookup failed", zap.Int("count", len(ids)), zap.Error(err))
		found = map[string]model.UserProfile{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			found[id] = model.UnknownProfile(id)
		}
	}
	return found
}
