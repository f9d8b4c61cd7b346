package mongostore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"LanChat/internal/model"
	"LanChat/internal/repo"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	testClient *mongo.Client
	dbSeq      atomic.Int64
	t0         = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	if err != nil {
		log.Printf("mongo container unavailable, skipping mongostore tests: %v", err)
		os.Exit(m.Run())
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connStr).SetDirect(true))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("failed to ping mongo: %v", err)
	}
	testClient = client

	code := m.Run()

	_ = testClient.Disconnect(ctx)
	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

// newStore opens a store over a fresh database that is dropped after the test.
func newStore(t *testing.T, transactions bool) (repo.Store, *mongo.Database) {
	t.Helper()
	if testClient == nil {
		t.Skip("mongo not available")
	}
	database := testClient.Database(fmt.Sprintf("lanchat_test_%d", dbSeq.Add(1)))
	t.Cleanup(func() {
		require.NoError(t, database.Drop(context.Background()))
	})

	s, err := New(context.Background(), database, zap.NewNop(), Options{Transactions: transactions})
	require.NoError(t, err)
	return s, database
}

func seedConversation(t *testing.T, s repo.Store, group bool, participants ...string) *model.Conversation {
	t.Helper()
	c := &model.Conversation{ParticipantIDs: participants, IsGroup: group, CreatedAt: t0}
	if group {
		c.GroupAdmins = []string{participants[0]}
	}
	require.NoError(t, s.Conversations.Create(context.Background(), c))
	return c
}

func seedMessage(t *testing.T, s repo.Store, convID, sender string, at time.Time) *model.Message {
	t.Helper()
	m := &model.Message{
		ConversationID: convID,
		SenderID:       sender,
		Content:        "hi",
		ContentType:    model.ContentText,
		CreatedAt:      at,
	}
	require.NoError(t, s.Messages.Insert(context.Background(), m))
	return m
}

func TestConversationRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - direct pair is unique in either order", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, false, "a", "b")

		err := s.Conversations.Create(ctx, &model.Conversation{ParticipantIDs: []string{"b", "a"}, CreatedAt: t0})
		assert.ErrorIs(t, err, repo.ErrConflict)

		found, err := s.Conversations.FindDirect(ctx, "b", "a")
		require.NoError(t, err)
		assert.Equal(t, c.ID, found.ID)
		assert.Equal(t, []string{}, found.GroupAdmins)
	})

	t.Run("happy path - groups with the same members do not collide", func(t *testing.T) {
		s, _ := newStore(t, true)
		seedConversation(t, s, true, "a", "b")
		seedConversation(t, s, true, "a", "b")

		list, err := s.Conversations.ListForUser(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("happy path - concurrent creations of one pair converge", func(t *testing.T) {
		s, _ := newStore(t, true)

		var created, conflicts atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				pair := []string{"a", "b"}
				if i%2 == 1 {
					pair = []string{"b", "a"}
				}
				err := s.Conversations.Create(ctx, &model.Conversation{ParticipantIDs: pair, CreatedAt: t0})
				switch {
				case err == nil:
					created.Add(1)
				case errors.Is(err, repo.ErrConflict):
					conflicts.Add(1)
				default:
					assert.NoError(t, err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(1), created.Load())
		assert.Equal(t, int64(7), conflicts.Load())
	})

	t.Run("sad path - unknown and malformed ids are not found", func(t *testing.T) {
		s, _ := newStore(t, true)

		_, err := s.Conversations.FindByID(ctx, "not-an-object-id")
		assert.ErrorIs(t, err, repo.ErrNotFound)

		_, err = s.Conversations.FindByID(ctx, "65f000000000000000000000")
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("happy path - concurrent membership updates are serialized", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, true, "a")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Conversations.UpdateMembership(ctx, c.ID, func(conv *model.Conversation) error {
					conv.ParticipantIDs = append(conv.ParticipantIDs, fmt.Sprintf("u%d", i))
					return nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := s.Conversations.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, got.ParticipantIDs, 11)
	})

	t.Run("sad path - rejected membership change writes nothing", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, true, "a", "b")

		_, err := s.Conversations.UpdateMembership(ctx, c.ID, func(conv *model.Conversation) error {
			conv.ParticipantIDs = nil
			return repo.ErrConflict
		})
		assert.ErrorIs(t, err, repo.ErrConflict)

		got, err := s.Conversations.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got.ParticipantIDs)
	})

	t.Run("happy path - list orders by last activity", func(t *testing.T) {
		s, _ := newStore(t, true)
		quiet := seedConversation(t, s, false, "a", "b")
		busy := seedConversation(t, s, false, "a", "c")
		seedMessage(t, s, busy.ID, "c", t0.Add(time.Minute))

		list, err := s.Conversations.ListForUser(ctx, "a")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, busy.ID, list[0].ID)
		assert.Equal(t, quiet.ID, list[1].ID)
	})
}

func TestMessageRepository(t *testing.T) {
	ctx := context.Background()

	for _, transactions := range []bool{true, false} {
		t.Run(fmt.Sprintf("happy path - pointer only moves forward (transactions=%t)", transactions), func(t *testing.T) {
			s, _ := newStore(t, transactions)
			c := seedConversation(t, s, false, "a", "b")
			newer := seedMessage(t, s, c.ID, "a", t0.Add(2*time.Minute))
			seedMessage(t, s, c.ID, "b", t0.Add(time.Minute))

			got, err := s.Conversations.FindByID(ctx, c.ID)
			require.NoError(t, err)
			require.NotNil(t, got.LastMessageID)
			assert.Equal(t, newer.ID, *got.LastMessageID)
			require.NotNil(t, got.LastMessageAt)
			assert.True(t, got.LastMessageAt.Equal(t0.Add(2*time.Minute)))
		})
	}

	t.Run("happy path - list before cursor skips expired", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, false, "a", "b")
		for i := 0; i < 5; i++ {
			seedMessage(t, s, c.ID, "a", t0.Add(time.Duration(i)*time.Minute))
		}
		gone := t0.Add(30 * time.Second)
		require.NoError(t, s.Messages.Insert(ctx, &model.Message{
			ConversationID: c.ID, SenderID: "a", Content: "secret",
			ContentType: model.ContentText, ExpiresAt: &gone, CreatedAt: t0.Add(10 * time.Second),
		}))
		later := t0.Add(2 * time.Hour)
		require.NoError(t, s.Messages.Insert(ctx, &model.Message{
			ConversationID: c.ID, SenderID: "b", Content: "still here",
			ContentType: model.ContentText, ExpiresAt: &later, CreatedAt: t0.Add(20 * time.Second),
		}))

		cursor := t0.Add(3 * time.Minute)
		list, err := s.Messages.ListBefore(ctx, c.ID, &cursor, t0.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, list, 4)
		assert.True(t, list[0].CreatedAt.Equal(t0.Add(2*time.Minute)))
		assert.Equal(t, "still here", list[2].Content)
		assert.True(t, list[3].CreatedAt.Equal(t0))

		page, err := s.Messages.ListBefore(ctx, c.ID, nil, t0.Add(time.Hour), 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.True(t, page[0].CreatedAt.Equal(t0.Add(4*time.Minute)))
	})

	t.Run("happy path - concurrent reaction toggles are not lost", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, false, "a", "b")
		m := seedMessage(t, s, c.ID, "a", t0)

		emojis := []string{"👍", "🎉", "❤️", "😂"}
		var wg sync.WaitGroup
		for _, e := range emojis {
			for _, u := range []string{"a", "b"} {
				wg.Add(1)
				go func(e, u string) {
					defer wg.Done()
					_, err := s.Messages.ToggleReaction(ctx, m.ID, u, e)
					assert.NoError(t, err)
				}(e, u)
			}
		}
		wg.Wait()

		got, err := s.Messages.FindByID(ctx, m.ID)
		require.NoError(t, err)
		for _, e := range emojis {
			assert.ElementsMatch(t, []string{"a", "b"}, got.Reactions[e])
		}
	})

	t.Run("happy path - toggling twice restores the reactions", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, false, "a", "b")
		m := seedMessage(t, s, c.ID, "a", t0)

		r, err := s.Messages.ToggleReaction(ctx, m.ID, "b", "👍")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, r["👍"])

		r, err = s.Messages.ToggleReaction(ctx, m.ID, "b", "👍")
		require.NoError(t, err)
		assert.Empty(t, r)
	})

	t.Run("sad path - toggle on a missing message", func(t *testing.T) {
		s, _ := newStore(t, true)

		_, err := s.Messages.ToggleReaction(ctx, "65f000000000000000000000", "a", "👍")
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("sad path - edit after delete conflicts and delete is idempotent", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, false, "a", "b")
		m := seedMessage(t, s, c.ID, "a", t0)

		changed, err := s.Messages.SoftDelete(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.Messages.SoftDelete(ctx, m.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		err = s.Messages.UpdateContent(ctx, m.ID, "edit", t0.Add(time.Minute))
		assert.ErrorIs(t, err, repo.ErrConflict)
	})

	t.Run("happy path - unread counts and mark read", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, false, "a", "b")
		m1 := seedMessage(t, s, c.ID, "a", t0)
		seedMessage(t, s, c.ID, "a", t0.Add(time.Second))
		seedMessage(t, s, c.ID, "b", t0.Add(2*time.Second))

		counts, err := s.Messages.UnreadCounts(ctx, "b", []string{c.ID, "junk"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts[c.ID])
		assert.Equal(t, int64(0), counts["junk"])

		require.NoError(t, s.Messages.MarkRead(ctx, m1.ID, t0.Add(time.Minute)))
		counts, err = s.Messages.UnreadCounts(ctx, "b", []string{c.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[c.ID])
	})

	t.Run("happy path - delete expired clears pointer and replies", func(t *testing.T) {
		s, _ := newStore(t, true)
		c := seedConversation(t, s, false, "a", "b")
		exp := t0.Add(time.Minute)
		doomed := &model.Message{
			ConversationID: c.ID, SenderID: "a", Content: "bye",
			ContentType: model.ContentText, ExpiresAt: &exp, CreatedAt: t0.Add(time.Second),
		}
		require.NoError(t, s.Messages.Insert(ctx, doomed))
		reply := &model.Message{
			ConversationID: c.ID, SenderID: "b", Content: "ok",
			ContentType: model.ContentText, ReplyTo: &doomed.ID, CreatedAt: t0,
		}
		require.NoError(t, s.Messages.Insert(ctx, reply))

		n, err := s.Messages.DeleteExpired(ctx, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		conv, err := s.Conversations.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, conv.LastMessageID)

		got, err := s.Messages.FindByID(ctx, reply.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ReplyTo)

		n, err = s.Messages.DeleteExpired(ctx, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestUserRepository(t *testing.T) {
	s, database := newStore(t, true)
	_, err := database.Collection(usersCollection).InsertOne(context.Background(), userDoc{
		UserID: "u1", Username: "ana", FirstName: "Ana", LastName: "B", CompanyID: "c1",
	})
	require.NoError(t, err)

	profiles, err := s.Users.FindProfiles(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
	assert.Equal(t, "ana", profiles["u1"].Username)
	assert.Equal(t, "Ana B", profiles["u1"].FullName)
}

func TestInsertThenPoint(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - stored message survives a pointer failure", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		inserted := false

		err := insertThenPoint(ctx,
			func(context.Context) error { inserted = true; return nil },
			func(context.Context) error { return repo.Transient(errors.New("socket closed")) },
			zap.New(core),
		)

		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, 1, logs.FilterMessage("message stored but last-message pointer not updated").Len())
	})

	t.Run("sad path - failed insert never moves the pointer", func(t *testing.T) {
		pointed := false

		err := insertThenPoint(ctx,
			func(context.Context) error { return repo.ErrConflict },
			func(context.Context) error { pointed = true; return nil },
			zap.NewNop(),
		)

		assert.ErrorIs(t, err, repo.ErrConflict)
		assert.False(t, pointed)
	})
}
