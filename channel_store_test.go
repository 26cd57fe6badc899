package adafri_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

type recordingSelector struct{ ids []string }

func (r *recordingSelector) SelectWorkspace(_ context.Context, id string) { r.ids = append(r.ids, id) }

func newChannelFixture() (*adafri.ChannelStore, *fakeChannelAPI, *fakeRealtime, *recordingSelector) {
	api := newFakeChannelAPI()
	api.lists["w1"] = []adafri.Channel{{ID: "c1", Name: "general"}, {ID: "c2", Name: "random"}}
	api.channels["c1"] = adafri.Channel{ID: "c1", WorkspaceID: "w1", Name: "general"}
	api.channels["c2"] = adafri.Channel{ID: "c2", WorkspaceID: "w1", Name: "random"}
	api.directs["w1"] = []adafri.DirectMessageChannel{{ID: "d1", WorkspaceID: "w1"}}
	rt := newFakeRealtime()
	ws := &recordingSelector{}
	return adafri.NewChannelStore(api, rt, ws), api, rt, ws
}

func TestSelectChannelLeavesPreviousRoom(t *testing.T) {
	ctx := context.Background()
	s, _, rt, ws := newChannelFixture()

	s.SelectChannel(ctx, "w1", "c1")
	rt.Reset()
	s.SelectChannel(ctx, "w1", "c2")

	assert.Equal(t, []string{"leave_channel:w1:c1", "join_channel:w1:c2"}, rt.Calls())
	assert.Equal(t, adafri.Selection{WorkspaceID: "w1", Conversation: adafri.ChannelConversation("c2")}, s.Selection())
	assert.Equal(t, []string{"w1", "w1"}, ws.ids)
}

func TestChannelAndDirectMessageAreExclusive(t *testing.T) {
	ctx := context.Background()
	s, _, rt, _ := newChannelFixture()

	s.SelectChannel(ctx, "w1", "c1")
	s.SelectDirectMessage(ctx, "w1", "d1")
	s.SelectChannel(ctx, "w1", "c2")

	assert.Equal(t, []string{
		"join_channel:w1:c1",
		"leave_channel:w1:c1",
		"join_direct_message:w1:d1",
		"leave_direct_message:w1:d1",
		"join_channel:w1:c2",
	}, rt.Calls())
	assert.Equal(t, adafri.KindChannel, s.Selection().Conversation.Kind)
}

func TestReselectingIsWorkspaceSyncOnly(t *testing.T) {
	ctx := context.Background()
	s, _, rt, ws := newChannelFixture()

	s.SelectChannel(ctx, "w1", "c1")
	s.SelectChannel(ctx, "w1", "c1")

	assert.Equal(t, []string{"join_channel:w1:c1"}, rt.Calls())
	assert.Equal(t, []string{"w1", "w1"}, ws.ids)
}

func TestFetchChannelsOverwrites(t *testing.T) {
	ctx := context.Background()
	s, api, _, _ := newChannelFixture()

	s.FetchChannels(ctx, "w1")
	require.Len(t, s.Channels("w1"), 2)

	api.lists["w1"] = []adafri.Channel{{ID: "c3"}}
	s.FetchChannels(ctx, "w1")
	assert.Equal(t, "c3", s.Channels("w1")[0].ID)
	assert.Len(t, s.Channels("w1"), 1)

	s.FetchDirectMessages(ctx, "w1")
	assert.Len(t, s.DirectMessages("w1"), 1)

	t.Run("failure keeps the previous list", func(t *testing.T) {
		api.err = errServer
		s.FetchChannels(ctx, "w1")
		assert.Len(t, s.Channels("w1"), 1)
		assert.Equal(t, adafri.StateFailed, s.Status("fetchChannels:w1").State)
	})
}

func TestCreateChannelAppends(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newChannelFixture()
	s.FetchChannels(ctx, "w1")

	ch, err := s.CreateChannel(ctx, &adafri.CreateChannelOptions{WorkspaceID: "w1", Name: "new"})
	require.NoError(t, err)

	list := s.Channels("w1")
	require.Len(t, list, 3)
	assert.Equal(t, ch.ID, list[2].ID)
}

func TestChannelMutationsRefetch(t *testing.T) {
	ctx := context.Background()
	s, api, _, _ := newChannelFixture()
	s.FetchChannels(ctx, "w1")

	require.NoError(t, s.AddChannelMember(ctx, "c1", "u9"))
	ch, ok := s.Channel("w1", "c1")
	require.True(t, ok)
	require.Len(t, ch.Members, 1)
	assert.Equal(t, "u9", ch.Members[0].ID)

	require.NoError(t, s.AddChannelAdmin(ctx, "c1", "u9"))
	require.NoError(t, s.UpdateChannel(ctx, "c1", &adafri.UpdateChannelOptions{Name: "renamed"}))
	require.NoError(t, s.ArchiveChannel(ctx, "c1"))
	ch, _ = s.Channel("w1", "c1")
	assert.Equal(t, "renamed", ch.Name)
	assert.Equal(t, []string{"u9"}, ch.Admins)
	assert.True(t, ch.IsArchived)

	require.NoError(t, s.UnarchiveChannel(ctx, "c1"))
	require.NoError(t, s.RemoveChannelMember(ctx, "c1", "u9"))
	ch, _ = s.Channel("w1", "c1")
	assert.False(t, ch.IsArchived)
	assert.Empty(t, ch.Members)

	assert.Equal(t, 6, api.gets)
	assert.Len(t, s.Channels("w1"), 2)

	t.Run("unknown channel error is returned", func(t *testing.T) {
		err := s.ArchiveChannel(ctx, "missing")
		var apiErr *adafri.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Channel not found", s.Status("archiveChannel:missing").Err)
	})
}

func TestCreateDirectMessageDeduplicates(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newChannelFixture()
	s.FetchDirectMessages(ctx, "w1")

	first, err := s.CreateDirectMessage(ctx, "w1", "u2")
	require.NoError(t, err)
	second, err := s.CreateDirectMessage(ctx, "w1", "u2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	dms := s.DirectMessages("w1")
	require.Len(t, dms, 2)
	count := 0
	for _, dm := range dms {
		if dm.ID == first.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestChannelClearSelectionAndReset(t *testing.T) {
	ctx := context.Background()
	s, _, rt, _ := newChannelFixture()
	s.FetchChannels(ctx, "w1")
	s.SelectDirectMessage(ctx, "w1", "d1")

	s.ClearSelection(ctx)
	assert.True(t, s.Selection().Conversation.IsZero())
	assert.Equal(t, []string{"join_direct_message:w1:d1", "leave_direct_message:w1:d1"}, rt.Calls())

	s.ClearSelection(ctx)
	assert.Len(t, rt.Calls(), 2)

	s.Reset()
	assert.Empty(t, s.Channels("w1"))
	assert.Empty(t, s.DirectMessages("w1"))
}

func TestChannelStoreWithoutWorkspaceSync(t *testing.T) {
	rt := newFakeRealtime()
	s := adafri.NewChannelStore(newFakeChannelAPI(), rt, nil)

	s.SelectChannel(context.Background(), "w1", "c1")
	assert.Equal(t, []string{"join_channel:w1:c1"}, rt.Calls())
}
