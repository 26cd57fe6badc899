package adafri

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkspaceAPI is the REST surface the workspace store needs.
type WorkspaceAPI interface {
	List(ctx context.Context) ([]Workspace, error)
	Create(ctx context.Context, opts *CreateWorkspaceOptions) (*Workspace, error)
	Update(ctx context.Context, id string, opts *UpdateWorkspaceOptions) (*Workspace, error)
	UpdateLogo(ctx context.Context, id string, logo Upload) (*Workspace, error)
	Members(ctx context.Context, id string) ([]Member, error)
	UpdateMember(ctx context.Context, id, userID, role string) (*Member, error)
	RemoveMember(ctx context.Context, id, userID string) error
	Invite(ctx context.Context, id string, opts *InviteOptions) (*Invitation, error)
	Invitations(ctx context.Context, id string) ([]Invitation, error)
	RevokeInvitation(ctx context.Context, id, invitationID string) error
	Join(ctx context.Context, token string) (*Workspace, error)
}

var _ WorkspaceAPI = (*WorkspacesClient)(nil)

// WorkspaceStore holds the workspace list and the single selected workspace.
type WorkspaceStore struct {
	statusBoard

	api WorkspaceAPI
	rt  Realtime
	log *zap.Logger

	mu          sync.RWMutex
	workspaces  []Workspace
	currentID   string
	members     map[string][]Member
	invitations map[string][]Invitation
}

func NewWorkspaceStore(api WorkspaceAPI, rt Realtime, opts ...StoreOption) *WorkspaceStore {
	cfg := newStoreConfig("workspaces", opts)
	s := &WorkspaceStore{
		api:         api,
		rt:          rt,
		log:         cfg.log,
		members:     make(map[string][]Member),
		invitations: make(map[string][]Invitation),
	}
	s.statusBoard.configure(cfg)
	return s
}

// ── Reads ────────────────────────────────────────────────

func (s *WorkspaceStore) Workspaces() []Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Workspace(nil), s.workspaces...)
}

func (s *WorkspaceStore) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Current returns the selected workspace if it is in the loaded list.
func (s *WorkspaceStore) Current() (Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.workspaces {
		if w.ID == s.currentID {
			return w, true
		}
	}
	return Workspace{}, false
}

func (s *WorkspaceStore) Members(workspaceID string) []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Member(nil), s.members[workspaceID]...)
}

func (s *WorkspaceStore) Invitations(workspaceID string) []Invitation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Invitation(nil), s.invitations[workspaceID]...)
}

// ── Selection ────────────────────────────────────────────

// FetchWorkspaces loads the list. When nothing is selected yet the first
// workspace is selected and its room joined. Failures are recorded, not returned.
func (s *WorkspaceStore) FetchWorkspaces(ctx context.Context) {
	var selected string
	_ = s.track("fetchWorkspaces", "Failed to fetch workspaces", func() error {
		list, err := s.api.List(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.workspaces = list
		if s.currentID == "" && len(list) > 0 {
			s.currentID = list[0].ID
			selected = s.currentID
		}
		s.mu.Unlock()
		return nil
	})
	if selected != "" {
		s.log.Debug("auto-selected workspace", zap.String("workspace_id", selected))
		s.joinRoom(ctx, selected)
	}
}

// SelectWorkspace makes id current and joins its room. Selecting the current
// workspace again does nothing.
func (s *WorkspaceStore) SelectWorkspace(ctx context.Context, id string) {
	s.mu.Lock()
	if s.currentID == id {
		s.mu.Unlock()
		return
	}
	s.currentID = id
	s.mu.Unlock()
	s.joinRoom(ctx, id)
}

// ClearSelection leaves the current workspace room and clears the selection.
func (s *WorkspaceStore) ClearSelection(ctx context.Context) {
	s.mu.Lock()
	id := s.currentID
	s.currentID = ""
	s.mu.Unlock()
	if id == "" {
		return
	}
	if err := s.rt.LeaveWorkspace(ctx, id); err != nil {
		s.log.Debug("leave workspace", zap.String("workspace_id", id), zap.Error(err))
	}
}

func (s *WorkspaceStore) joinRoom(ctx context.Context, id string) {
	if err := s.rt.SetCurrentWorkspace(ctx, id); err != nil {
		s.log.Debug("join workspace", zap.String("workspace_id", id), zap.Error(err))
	}
}

// ── Workspace mutations ──────────────────────────────────

func (s *WorkspaceStore) CreateWorkspace(ctx context.Context, opts *CreateWorkspaceOptions) (*Workspace, error) {
	return s.mutate("createWorkspace", "", "Failed to create workspace", func() (*Workspace, error) {
		return s.api.Create(ctx, opts)
	})
}

func (s *WorkspaceStore) UpdateWorkspace(ctx context.Context, id string, opts *UpdateWorkspaceOptions) (*Workspace, error) {
	return s.mutate("updateWorkspace", id, "Failed to update workspace", func() (*Workspace, error) {
		return s.api.Update(ctx, id, opts)
	})
}

func (s *WorkspaceStore) UpdateWorkspaceLogo(ctx context.Context, id string, logo Upload) (*Workspace, error) {
	return s.mutate("updateWorkspaceLogo", id, "Failed to update workspace logo", func() (*Workspace, error) {
		return s.api.UpdateLogo(ctx, id, logo)
	})
}

// JoinWorkspace accepts an invitation token and adds the workspace to the list.
func (s *WorkspaceStore) JoinWorkspace(ctx context.Context, token string) (*Workspace, error) {
	return s.mutate("joinWorkspace", "", "Failed to join workspace", func() (*Workspace, error) {
		return s.api.Join(ctx, token)
	})
}

func (s *WorkspaceStore) mutate(op, id, fallback string, call func() (*Workspace, error)) (*Workspace, error) {
	key := op
	if id != "" {
		key = opKey(op, id)
	}
	var out *Workspace
	err := s.track(key, fallback, func() error {
		w, err := call()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.workspaces = mergeWorkspace(s.workspaces, *w)
		s.mu.Unlock()
		out = w
		return nil
	})
	return out, err
}

func mergeWorkspace(list []Workspace, w Workspace) []Workspace {
	for i := range list {
		if list[i].ID == w.ID {
			list[i] = w
			return list
		}
	}
	return append(list, w)
}

// ── Members ──────────────────────────────────────────────

// FetchMembers loads the member list of a workspace. Failures are recorded, not returned.
func (s *WorkspaceStore) FetchMembers(ctx context.Context, workspaceID string) {
	_ = s.track(opKey("fetchMembers", workspaceID), "Failed to fetch members", func() error {
		members, err := s.api.Members(ctx, workspaceID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.members[workspaceID] = members
		s.mu.Unlock()
		return nil
	})
}

func (s *WorkspaceStore) UpdateMemberRole(ctx context.Context, workspaceID, userID, role string) error {
	return s.track(opKey("updateMemberRole", workspaceID, userID), "Failed to update member role", func() error {
		m, err := s.api.UpdateMember(ctx, workspaceID, userID, role)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.members[workspaceID]
		for i := range list {
			if list[i].User.ID == userID {
				if m != nil && m.User.ID != "" {
					list[i] = *m
				} else {
					list[i].Role = role
				}
			}
		}
		return nil
	})
}

func (s *WorkspaceStore) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	return s.track(opKey("removeMember", workspaceID, userID), "Failed to remove member", func() error {
		if err := s.api.RemoveMember(ctx, workspaceID, userID); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.members[workspaceID]
		kept := make([]Member, 0, len(list))
		for _, m := range list {
			if m.User.ID != userID {
				kept = append(kept, m)
			}
		}
		s.members[workspaceID] = kept
		return nil
	})
}

// ── Invitations ──────────────────────────────────────────

func (s *WorkspaceStore) InviteMember(ctx context.Context, workspaceID string, opts *InviteOptions) (*Invitation, error) {
	var out *Invitation
	err := s.track(opKey("inviteMember", workspaceID), "Failed to send invitation", func() error {
		inv, err := s.api.Invite(ctx, workspaceID, opts)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.invitations[workspaceID] = append(s.invitations[workspaceID], *inv)
		s.mu.Unlock()
		out = inv
		return nil
	})
	return out, err
}

// FetchInvitations loads pending invitations. Failures are recorded, not returned.
func (s *WorkspaceStore) FetchInvitations(ctx context.Context, workspaceID string) {
	_ = s.track(opKey("fetchInvitations", workspaceID), "Failed to fetch invitations", func() error {
		invs, err := s.api.Invitations(ctx, workspaceID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.invitations[workspaceID] = invs
		s.mu.Unlock()
		return nil
	})
}

func (s *WorkspaceStore) RevokeInvitation(ctx context.Context, workspaceID, invitationID string) error {
	return s.track(opKey("revokeInvitation", workspaceID, invitationID), "Failed to revoke invitation", func() error {
		if err := s.api.RevokeInvitation(ctx, workspaceID, invitationID); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.invitations[workspaceID]
		kept := make([]Invitation, 0, len(list))
		for _, inv := range list {
			if inv.ID != invitationID {
				kept = append(kept, inv)
			}
		}
		s.invitations[workspaceID] = kept
		return nil
	})
}

// Reset drops all state. It does not touch the socket; call ClearSelection first.
func (s *WorkspaceStore) Reset() {
	s.mu.Lock()
	s.workspaces = nil
	s.currentID = ""
	s.members = make(map[string][]Member)
	s.invitations = make(map[string][]Invitation)
	s.mu.Unlock()
	s.statusBoard.reset()
}
