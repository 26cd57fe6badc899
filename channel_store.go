package adafri

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ChannelAPI is the REST surface the channel store needs.
type ChannelAPI interface {
	List(ctx context.Context, workspaceID string) ([]Channel, error)
	Get(ctx context.Context, id string) (*Channel, error)
	Create(ctx context.Context, opts *CreateChannelOptions) (*Channel, error)
	Update(ctx context.Context, id string, opts *UpdateChannelOptions) error
	Archive(ctx context.Context, id string) error
	Unarchive(ctx context.Context, id string) error
	AddMember(ctx context.Context, id, userID string) error
	RemoveMember(ctx context.Context, id, userID string) error
	AddAdmin(ctx context.Context, id, userID string) error
	ListDirect(ctx context.Context, workspaceID string) ([]DirectMessageChannel, error)
	CreateDirect(ctx context.Context, workspaceID, userID string) (*DirectMessageChannel, error)
}

var _ ChannelAPI = (*ChannelsClient)(nil)

// WorkspaceSelector keeps the workspace selection in step with channel navigation.
type WorkspaceSelector interface {
	SelectWorkspace(ctx context.Context, id string)
}

// Selection is the currently open conversation. At most one channel or one
// direct message is selected at a time.
type Selection struct {
	WorkspaceID  string
	Conversation Conversation
}

// ChannelStore holds per-workspace channel and DM lists and the selection.
type ChannelStore struct {
	statusBoard

	api        ChannelAPI
	rt         Realtime
	workspaces WorkspaceSelector
	log        *zap.Logger

	mu        sync.RWMutex
	channels  map[string][]Channel
	directs   map[string][]DirectMessageChannel
	selection Selection
}

// NewChannelStore creates the store. workspaces may be nil.
func NewChannelStore(api ChannelAPI, rt Realtime, workspaces WorkspaceSelector, opts ...StoreOption) *ChannelStore {
	cfg := newStoreConfig("channels", opts)
	s := &ChannelStore{
		api:        api,
		rt:         rt,
		workspaces: workspaces,
		log:        cfg.log,
		channels:   make(map[string][]Channel),
		directs:    make(map[string][]DirectMessageChannel),
	}
	s.statusBoard.configure(cfg)
	return s
}

// ── Reads ────────────────────────────────────────────────

func (s *ChannelStore) Channels(workspaceID string) []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Channel(nil), s.channels[workspaceID]...)
}

func (s *ChannelStore) DirectMessages(workspaceID string) []DirectMessageChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]DirectMessageChannel(nil), s.directs[workspaceID]...)
}

func (s *ChannelStore) Channel(workspaceID, id string) (Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.channels[workspaceID] {
		if ch.ID == id {
			return ch, true
		}
	}
	return Channel{}, false
}

func (s *ChannelStore) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// ── Fetch ────────────────────────────────────────────────

// FetchChannels replaces the channel list of a workspace. Failures are recorded, not returned.
func (s *ChannelStore) FetchChannels(ctx context.Context, workspaceID string) {
	_ = s.track(opKey("fetchChannels", workspaceID), "Failed to fetch channels", func() error {
		list, err := s.api.List(ctx, workspaceID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.channels[workspaceID] = list
		s.mu.Unlock()
		return nil
	})
}

// FetchDirectMessages replaces the DM list of a workspace. Failures are recorded, not returned.
func (s *ChannelStore) FetchDirectMessages(ctx context.Context, workspaceID string) {
	_ = s.track(opKey("fetchDirectMessages", workspaceID), "Failed to fetch direct messages", func() error {
		list, err := s.api.ListDirect(ctx, workspaceID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.directs[workspaceID] = list
		s.mu.Unlock()
		return nil
	})
}

// ── Selection ────────────────────────────────────────────

// SelectChannel opens a channel, leaving any selected DM or other channel first.
func (s *ChannelStore) SelectChannel(ctx context.Context, workspaceID, channelID string) {
	s.selectConversation(ctx, workspaceID, ChannelConversation(channelID))
}

// SelectDirectMessage opens a DM, leaving any selected channel or other DM first.
func (s *ChannelStore) SelectDirectMessage(ctx context.Context, workspaceID, directMessageID string) {
	s.selectConversation(ctx, workspaceID, DirectConversation(directMessageID))
}

func (s *ChannelStore) selectConversation(ctx context.Context, workspaceID string, conv Conversation) {
	if s.workspaces != nil {
		s.workspaces.SelectWorkspace(ctx, workspaceID)
	}

	next := Selection{WorkspaceID: workspaceID, Conversation: conv}
	s.mu.Lock()
	prev := s.selection
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.selection = next
	s.mu.Unlock()

	s.leaveRoom(ctx, prev)
	var err error
	switch conv.Kind {
	case KindChannel:
		err = s.rt.JoinChannel(ctx, workspaceID, conv.ID)
	case KindDirect:
		err = s.rt.JoinDirectMessage(ctx, workspaceID, conv.ID)
	}
	if err != nil {
		s.log.Debug("join room", zap.Stringer("conversation", conv), zap.Error(err))
	}
}

// ClearSelection leaves the open channel or DM room and clears the selection.
func (s *ChannelStore) ClearSelection(ctx context.Context) {
	s.mu.Lock()
	prev := s.selection
	s.selection = Selection{}
	s.mu.Unlock()
	s.leaveRoom(ctx, prev)
}

func (s *ChannelStore) leaveRoom(ctx context.Context, sel Selection) {
	var err error
	switch sel.Conversation.Kind {
	case KindChannel:
		err = s.rt.LeaveChannel(ctx, sel.WorkspaceID, sel.Conversation.ID)
	case KindDirect:
		err = s.rt.LeaveDirectMessage(ctx, sel.WorkspaceID, sel.Conversation.ID)
	default:
		return
	}
	if err != nil {
		s.log.Debug("leave room", zap.Stringer("conversation", sel.Conversation), zap.Error(err))
	}
}

// ── Channel mutations ────────────────────────────────────

// CreateChannel creates a channel and appends it to its workspace list.
func (s *ChannelStore) CreateChannel(ctx context.Context, opts *CreateChannelOptions) (*Channel, error) {
	var out *Channel
	err := s.track(opKey("createChannel", opts.WorkspaceID), "Failed to create channel", func() error {
		ch, err := s.api.Create(ctx, opts)
		if err != nil {
			return err
		}
		wid := opts.WorkspaceID
		if wid == "" {
			wid = ch.WorkspaceID
		}
		s.mu.Lock()
		s.channels[wid] = append(s.channels[wid], *ch)
		s.mu.Unlock()
		out = ch
		return nil
	})
	return out, err
}

func (s *ChannelStore) UpdateChannel(ctx context.Context, id string, opts *UpdateChannelOptions) error {
	return s.mutateChannel(ctx, "updateChannel", id, "Failed to update channel", func() error {
		return s.api.Update(ctx, id, opts)
	})
}

func (s *ChannelStore) ArchiveChannel(ctx context.Context, id string) error {
	return s.mutateChannel(ctx, "archiveChannel", id, "Failed to archive channel", func() error {
		return s.api.Archive(ctx, id)
	})
}

func (s *ChannelStore) UnarchiveChannel(ctx context.Context, id string) error {
	return s.mutateChannel(ctx, "unarchiveChannel", id, "Failed to unarchive channel", func() error {
		return s.api.Unarchive(ctx, id)
	})
}

func (s *ChannelStore) AddChannelMember(ctx context.Context, id, userID string) error {
	return s.mutateChannel(ctx, "addChannelMember", id, "Failed to add member", func() error {
		return s.api.AddMember(ctx, id, userID)
	})
}

func (s *ChannelStore) RemoveChannelMember(ctx context.Context, id, userID string) error {
	return s.mutateChannel(ctx, "removeChannelMember", id, "Failed to remove member", func() error {
		return s.api.RemoveMember(ctx, id, userID)
	})
}

func (s *ChannelStore) AddChannelAdmin(ctx context.Context, id, userID string) error {
	return s.mutateChannel(ctx, "addChannelAdmin", id, "Failed to add admin", func() error {
		return s.api.AddAdmin(ctx, id, userID)
	})
}

// mutateChannel runs call and then re-fetches the channel, since membership
// changes can alter fields the server derives.
func (s *ChannelStore) mutateChannel(ctx context.Context, op, id, fallback string, call func() error) error {
	return s.track(opKey(op, id), fallback, func() error {
		if err := call(); err != nil {
			return err
		}
		ch, err := s.api.Get(ctx, id)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.replaceChannelLocked(*ch)
		s.mu.Unlock()
		return nil
	})
}

func (s *ChannelStore) replaceChannelLocked(ch Channel) {
	for wid, list := range s.channels {
		for i := range list {
			if list[i].ID == ch.ID {
				s.channels[wid][i] = ch
				return
			}
		}
	}
}

// ── Direct messages ──────────────────────────────────────

// CreateDirectMessage opens (or reuses) the DM with userID. The server returns
// the existing DM when there is one, so it is only appended when new locally.
func (s *ChannelStore) CreateDirectMessage(ctx context.Context, workspaceID, userID string) (*DirectMessageChannel, error) {
	var out *DirectMessageChannel
	err := s.track(opKey("createDirectMessage", workspaceID, userID), "Failed to create direct message", func() error {
		dm, err := s.api.CreateDirect(ctx, workspaceID, userID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		out = dm
		for _, existing := range s.directs[workspaceID] {
			if existing.ID == dm.ID {
				return nil
			}
		}
		s.directs[workspaceID] = append(s.directs[workspaceID], *dm)
		return nil
	})
	return out, err
}

// Reset drops all state. It does not touch the socket; call ClearSelection first.
func (s *ChannelStore) Reset() {
	s.mu.Lock()
	s.channels = make(map[string][]Channel)
	s.directs = make(map[string][]DirectMessageChannel)
	s.selection = Selection{}
	s.mu.Unlock()
	s.statusBoard.reset()
}
