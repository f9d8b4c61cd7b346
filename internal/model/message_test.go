package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReactionsToggle(t *testing.T) {
	t.Run("happy path - toggling twice restores the original state", func(t *testing.T) {
		r := Reactions{"👍": {"u1"}}

		assert.True(t, r.Toggle("👍", "u2"))
		assert.Equal(t, []string{"u1", "u2"}, r["👍"])

		assert.False(t, r.Toggle("👍", "u2"))
		assert.Equal(t, Reactions{"👍": {"u1"}}, r)
	})

	t.Run("happy path - removing the last user drops the emoji", func(t *testing.T) {
		r := Reactions{"🎉": {"u1"}}

		assert.False(t, r.Toggle("🎉", "u1"))
		assert.Empty(t, r)
	})

	t.Run("happy path - clone is independent", func(t *testing.T) {
		r := Reactions{"👍": {"u1"}}
		cp := r.Clone()
		cp.Toggle("👍", "u2")

		assert.Equal(t, []string{"u1"}, r["👍"])
	})
}

func TestPresent(t *testing.T) {
	url := "http://files.local/a.png"
	m := Message{
		ID:          "m1",
		SenderID:    "u1",
		Content:     "secret",
		ContentType: ContentImage,
		FileURL:     &url,
		IsDeleted:   true,
	}

	view := Present(m, UserProfile{ID: "u1", Username: "alice", FullName: "Alice A"})

	assert.Equal(t, DeletedPlaceholder, view.Content)
	assert.Equal(t, ContentDeleted, view.ContentType)
	assert.Nil(t, view.FileURL)
	assert.Equal(t, "alice", view.SenderUsername)
	assert.NotNil(t, view.Reactions)
	assert.Equal(t, "secret", m.Content, "stored message must not change")
}

func TestMessageExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	assert.True(t, (&Message{ExpiresAt: &past}).Expired(now))
	assert.True(t, (&Message{ExpiresAt: &now}).Expired(now))
	assert.False(t, (&Message{ExpiresAt: &future}).Expired(now))
	assert.False(t, (&Message{}).Expired(now))
}

func TestDirectKeyAndNormalize(t *testing.T) {
	assert.Equal(t, DirectKey("b", "a"), DirectKey("a", "b"))
	assert.Equal(t, []string{"a", "b"}, NormalizeParticipants("b", []string{"a", "b", "", "a"}))

	c := &Conversation{ParticipantIDs: []string{"x", "y"}}
	assert.Equal(t, "x|y", c.DirectKey())

	c.IsGroup = true
	assert.Empty(t, c.DirectKey())
}

func TestCallSessionStateOf(t *testing.T) {
	s := &CallSession{CallerID: "a", CalleeID: "b"}

	assert.Equal(t, CallCalling, s.StateOf("a"))
	assert.Equal(t, CallReceiving, s.StateOf("b"))
	assert.Equal(t, CallIdle, s.StateOf("c"))
	assert.Equal(t, "b", s.Peer("a"))

	s.Connected = true
	assert.Equal(t, CallConnected, s.StateOf("a"))
	assert.Equal(t, CallConnected, s.StateOf("b"))
}
