package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexiblePayloads(t *testing.T) {
	t.Run("happy path - bare strings", func(t *testing.T) {
		var tok TokenPayload
		require.NoError(t, json.Unmarshal([]byte(`"abc"`), &tok))
		assert.Equal(t, "abc", tok.Token)

		var ref ConversationRef
		require.NoError(t, json.Unmarshal([]byte(`"c1"`), &ref))
		assert.Equal(t, "c1", ref.ConversationID)

		var st StatusPayload
		require.NoError(t, json.Unmarshal([]byte(`"away"`), &st))
		assert.Equal(t, "away", st.Status)
	})

	t.Run("happy path - objects", func(t *testing.T) {
		var tok TokenPayload
		require.NoError(t, json.Unmarshal([]byte(`{"token":"abc"}`), &tok))
		assert.Equal(t, "abc", tok.Token)

		var ref ConversationRef
		require.NoError(t, json.Unmarshal([]byte(`{"conversationId":"c1"}`), &ref))
		assert.Equal(t, "c1", ref.ConversationID)
	})

	t.Run("sad path - wrong shape", func(t *testing.T) {
		var ref ConversationRef
		assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &ref))
	})
}

func TestNew(t *testing.T) {
	ev := New(EventTypingUpdate, map[string]any{"isTyping": true})

	assert.Equal(t, EventTypingUpdate, ev.Event)
	assert.JSONEq(t, `{"isTyping":true}`, string(ev.Payload))
}
