package adafri_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

func envelope(t *testing.T, raw string) adafri.Envelope {
	t.Helper()
	var env adafri.Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func TestDecodeEvent(t *testing.T) {
	t.Run("new_message", func(t *testing.T) {
		ev, err := adafri.DecodeEvent(envelope(t, `{"type":"new_message","payload":{
			"id":"m1","workspaceId":"w1","channelId":"c1","sender":{"id":"u1"},
			"content":"hi","createdAt":"2024-03-01T12:00:00Z"}}`))
		require.NoError(t, err)
		e, ok := ev.(adafri.NewMessageEvent)
		require.True(t, ok)
		assert.Equal(t, "m1", e.Message.ID)
		conv, ok := e.Message.Conversation()
		require.True(t, ok)
		assert.Equal(t, adafri.ChannelConversation("c1"), conv)
	})

	t.Run("message_update", func(t *testing.T) {
		ev, err := adafri.DecodeEvent(envelope(t, `{"type":"message_update","payload":{"id":"m1","directMessageId":"d1","content":"edited"}}`))
		require.NoError(t, err)
		e := ev.(adafri.MessageUpdateEvent)
		assert.Equal(t, "edited", e.Message.Content)
		assert.Equal(t, adafri.EventMessageUpdate, ev.Type())
	})

	t.Run("message_delete", func(t *testing.T) {
		ev, err := adafri.DecodeEvent(envelope(t, `{"type":"message_delete","payload":{"messageId":"m1","workspaceId":"w1","directMessageId":"d1"}}`))
		require.NoError(t, err)
		e := ev.(adafri.MessageDeleteEvent)
		assert.Equal(t, "m1", e.MessageID)
		assert.Equal(t, adafri.DirectConversation("d1"), e.Conversation)

		_, err = adafri.DecodeEvent(envelope(t, `{"type":"message_delete","payload":{"workspaceId":"w1"}}`))
		assert.Error(t, err)
	})

	t.Run("new_thread_message wrapped", func(t *testing.T) {
		ev, err := adafri.DecodeEvent(envelope(t, `{"type":"new_thread_message","payload":{"parentId":"p1","message":{"id":"r1","workspaceId":"w1"}}}`))
		require.NoError(t, err)
		e := ev.(adafri.NewThreadMessageEvent)
		assert.Equal(t, "p1", e.ParentID)
		assert.Equal(t, "r1", e.Message.ID)
		assert.Equal(t, "p1", e.Message.ParentID)
	})

	t.Run("new_thread_message bare", func(t *testing.T) {
		ev, err := adafri.DecodeEvent(envelope(t, `{"type":"new_thread_message","payload":{"id":"r2","parentId":"p2","workspaceId":"w1"}}`))
		require.NoError(t, err)
		e := ev.(adafri.NewThreadMessageEvent)
		assert.Equal(t, "p2", e.ParentID)
		assert.Equal(t, "r2", e.Message.ID)

		_, err = adafri.DecodeEvent(envelope(t, `{"type":"new_thread_message","payload":{"id":"r3"}}`))
		assert.Error(t, err)
	})

	t.Run("reaction_update", func(t *testing.T) {
		ev, err := adafri.DecodeEvent(envelope(t, `{"type":"reaction_update","payload":{
			"messageId":"m1","workspaceId":"w1","channelId":"c1",
			"reactions":[{"emoji":"👍","users":["u1","u2"],"count":2}]}}`))
		require.NoError(t, err)
		e := ev.(adafri.ReactionUpdateEvent)
		require.Len(t, e.Reactions, 1)
		assert.Equal(t, 2, e.Reactions[0].Count)
	})

	t.Run("typing accepts dmId and directMessageId", func(t *testing.T) {
		ev, err := adafri.DecodeEvent(envelope(t, `{"type":"typing_start","payload":{"userId":"u1","workspaceId":"w1","dmId":"d1"}}`))
		require.NoError(t, err)
		assert.Equal(t, adafri.DirectConversation("d1"), ev.(adafri.TypingStartEvent).Indicator.Conversation)

		ev, err = adafri.DecodeEvent(envelope(t, `{"type":"typing_stop","payload":{"userId":"u1","workspaceId":"w1","directMessageId":"d1"}}`))
		require.NoError(t, err)
		assert.Equal(t, "u1", ev.(adafri.TypingStopEvent).Indicator.UserID)
		assert.Equal(t, adafri.DirectConversation("d1"), ev.(adafri.TypingStopEvent).Indicator.Conversation)
	})

	t.Run("unknown and malformed", func(t *testing.T) {
		_, err := adafri.DecodeEvent(adafri.Envelope{Type: "presence"})
		assert.ErrorContains(t, err, "unknown event type")

		_, err = adafri.DecodeEvent(adafri.Envelope{Type: "new_message", Payload: json.RawMessage(`[1]`)})
		assert.Error(t, err)
	})
}

func TestMessagePageAcceptsBareArray(t *testing.T) {
	var page adafri.MessagePage
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"a"},{"id":"b"}]`), &page))
	assert.Len(t, page.Messages, 2)
	assert.Nil(t, page.HasMore)
	assert.True(t, page.More(2))
	assert.False(t, page.More(3))

	require.NoError(t, json.Unmarshal([]byte(`{"messages":[{"id":"c"}],"hasMore":true}`), &page))
	assert.Len(t, page.Messages, 1)
	assert.True(t, page.More(50))
}
