package adafri_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

func newWorkspaceFixture() (*adafri.WorkspaceStore, *fakeWorkspaceAPI, *fakeRealtime) {
	api := &fakeWorkspaceAPI{
		workspaces: []adafri.Workspace{{ID: "w1", Name: "One"}, {ID: "w2", Name: "Two"}},
		members: map[string][]adafri.Member{
			"w1": {{User: adafri.User{ID: "u1"}, Role: "member"}, {User: adafri.User{ID: "u2"}, Role: "admin"}},
		},
		invitations: map[string][]adafri.Invitation{
			"w1": {{ID: "i1", WorkspaceID: "w1", Email: "a@example.com"}},
		},
	}
	rt := newFakeRealtime()
	return adafri.NewWorkspaceStore(api, rt), api, rt
}

func TestFetchWorkspacesAutoSelectsFirst(t *testing.T) {
	ctx := context.Background()
	s, _, rt := newWorkspaceFixture()

	s.FetchWorkspaces(ctx)

	assert.Len(t, s.Workspaces(), 2)
	assert.Equal(t, "w1", s.CurrentID())
	assert.Equal(t, []string{"workspace:w1"}, rt.Calls())
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "One", cur.Name)

	t.Run("refetch keeps the selection", func(t *testing.T) {
		s.SelectWorkspace(ctx, "w2")
		s.FetchWorkspaces(ctx)
		assert.Equal(t, "w2", s.CurrentID())
		assert.Equal(t, []string{"workspace:w1", "workspace:w2"}, rt.Calls())
	})
}

func TestFetchWorkspacesFailure(t *testing.T) {
	s, api, rt := newWorkspaceFixture()
	api.listErr = &adafri.APIError{Status: 401, Message: "Unauthorized"}

	s.FetchWorkspaces(context.Background())

	assert.Empty(t, s.Workspaces())
	assert.Empty(t, s.CurrentID())
	assert.Empty(t, rt.Calls())
	assert.Equal(t, "Unauthorized", s.LastError())
	assert.Equal(t, adafri.StateFailed, s.Status("fetchWorkspaces").State)
	assert.False(t, s.IsLoading())
}

func TestSelectWorkspaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _, rt := newWorkspaceFixture()

	s.SelectWorkspace(ctx, "w2")
	s.SelectWorkspace(ctx, "w2")

	assert.Equal(t, []string{"workspace:w2"}, rt.Calls())
	assert.Equal(t, "w2", s.CurrentID())
}

func TestWorkspaceMutationsMergeByID(t *testing.T) {
	ctx := context.Background()
	s, api, _ := newWorkspaceFixture()
	s.FetchWorkspaces(ctx)

	created, err := s.CreateWorkspace(ctx, &adafri.CreateWorkspaceOptions{Name: "Three"})
	require.NoError(t, err)
	assert.Equal(t, "new-Three", created.ID)
	require.Len(t, s.Workspaces(), 3)

	_, err = s.UpdateWorkspace(ctx, "w2", &adafri.UpdateWorkspaceOptions{Name: "Renamed"})
	require.NoError(t, err)
	list := s.Workspaces()
	require.Len(t, list, 3)
	assert.Equal(t, "Renamed", list[1].Name)

	_, err = s.UpdateWorkspaceLogo(ctx, "w1", adafri.Upload{FileName: "logo.png", Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/logo.png", s.Workspaces()[0].Logo)

	joined, err := s.JoinWorkspace(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "joined-tok", joined.ID)
	assert.Len(t, s.Workspaces(), 4)

	t.Run("errors are returned and recorded", func(t *testing.T) {
		api.err = &adafri.APIError{Status: 403, Message: "Forbidden"}
		_, err := s.UpdateWorkspace(ctx, "w1", &adafri.UpdateWorkspaceOptions{Name: "x"})
		var apiErr *adafri.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 403, apiErr.Status)
		assert.Equal(t, "Forbidden", s.Status("updateWorkspace:w1").Err)
		assert.Len(t, s.Workspaces(), 4)
	})
}

func TestWorkspaceMembers(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newWorkspaceFixture()

	s.FetchMembers(ctx, "w1")
	require.Len(t, s.Members("w1"), 2)

	require.NoError(t, s.UpdateMemberRole(ctx, "w1", "u1", "admin"))
	assert.Equal(t, "admin", s.Members("w1")[0].Role)

	require.NoError(t, s.RemoveMember(ctx, "w1", "u2"))
	members := s.Members("w1")
	require.Len(t, members, 1)
	assert.Equal(t, "u1", members[0].User.ID)
	assert.Empty(t, s.Members("w2"))
}

func TestWorkspaceInvitations(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newWorkspaceFixture()

	s.FetchInvitations(ctx, "w1")
	require.Len(t, s.Invitations("w1"), 1)

	inv, err := s.InviteMember(ctx, "w1", &adafri.InviteOptions{Email: "b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "inv-b@example.com", inv.ID)
	require.Len(t, s.Invitations("w1"), 2)

	require.NoError(t, s.RevokeInvitation(ctx, "w1", "i1"))
	invs := s.Invitations("w1")
	require.Len(t, invs, 1)
	assert.Equal(t, "inv-b@example.com", invs[0].ID)
}

func TestWorkspaceClearAndReset(t *testing.T) {
	ctx := context.Background()
	s, _, rt := newWorkspaceFixture()
	s.FetchWorkspaces(ctx)
	s.FetchMembers(ctx, "w1")

	s.ClearSelection(ctx)
	assert.Empty(t, s.CurrentID())
	assert.Equal(t, []string{"workspace:w1", "leave_workspace:w1"}, rt.Calls())

	s.ClearSelection(ctx)
	assert.Len(t, rt.Calls(), 2, "clearing twice leaves once")

	s.Reset()
	assert.Empty(t, s.Workspaces())
	assert.Empty(t, s.Members("w1"))
	assert.Equal(t, adafri.StateIdle, s.Status("fetchWorkspaces").State)
}
