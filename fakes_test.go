package adafri_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

// ============================================================================
// Test Helpers
// ============================================================================

var (
	t0        = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	errServer = &adafri.APIError{Status: 500, Message: "boom"}
)

func at(minute int) time.Time { return t0.Add(time.Duration(minute) * time.Minute) }

func channelMsg(id, wid, cid, sender string, minute int) adafri.Message {
	return adafri.Message{
		ID:          id,
		WorkspaceID: wid,
		ChannelID:   cid,
		Sender:      adafri.User{ID: sender},
		Content:     "msg " + id,
		CreatedAt:   at(minute),
	}
}

func directMsg(id, wid, dmid, sender string, minute int) adafri.Message {
	m := channelMsg(id, wid, "", sender, minute)
	m.DirectMessageID = dmid
	return m
}

// fakeRealtime records room and typing commands in call order.
type fakeRealtime struct {
	mu       sync.Mutex
	calls    []string
	handlers map[adafri.EventType]adafri.EventHandler
	err      error
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{handlers: make(map[adafri.EventType]adafri.EventHandler)}
}

func (f *fakeRealtime) record(format string, args ...interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
	return f.err
}

func (f *fakeRealtime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRealtime) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeRealtime) SetCurrentWorkspace(_ context.Context, wid string) error {
	return f.record("workspace:%s", wid)
}
func (f *fakeRealtime) LeaveWorkspace(_ context.Context, wid string) error {
	return f.record("leave_workspace:%s", wid)
}
func (f *fakeRealtime) JoinChannel(_ context.Context, wid, id string) error {
	return f.record("join_channel:%s:%s", wid, id)
}
func (f *fakeRealtime) LeaveChannel(_ context.Context, wid, id string) error {
	return f.record("leave_channel:%s:%s", wid, id)
}
func (f *fakeRealtime) JoinDirectMessage(_ context.Context, wid, id string) error {
	return f.record("join_direct_message:%s:%s", wid, id)
}
func (f *fakeRealtime) LeaveDirectMessage(_ context.Context, wid, id string) error {
	return f.record("leave_direct_message:%s:%s", wid, id)
}
func (f *fakeRealtime) JoinThread(_ context.Context, wid, id string) error {
	return f.record("join_thread:%s:%s", wid, id)
}
func (f *fakeRealtime) LeaveThread(_ context.Context, wid, id string) error {
	return f.record("leave_thread:%s:%s", wid, id)
}
func (f *fakeRealtime) SendTypingStart(_ context.Context, s adafri.TypingScope) error {
	return f.record("typing_start:%s:%s", s.WorkspaceID, s.Conversation)
}
func (f *fakeRealtime) SendTypingStop(_ context.Context, s adafri.TypingScope) error {
	return f.record("typing_stop:%s:%s", s.WorkspaceID, s.Conversation)
}

func (f *fakeRealtime) On(ev adafri.EventType, h adafri.EventHandler) {
	f.mu.Lock()
	f.handlers[ev] = h
	f.mu.Unlock()
}

func (f *fakeRealtime) Off(ev adafri.EventType) {
	f.mu.Lock()
	delete(f.handlers, ev)
	f.mu.Unlock()
}

// emit delivers ev the way the connection's read loop would.
func (f *fakeRealtime) emit(ev adafri.Event) bool {
	f.mu.Lock()
	h := f.handlers[ev.Type()]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(ev)
	return true
}

func (f *fakeRealtime) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// ── Workspace API ────────────────────────────────────────

type fakeWorkspaceAPI struct {
	mu          sync.Mutex
	workspaces  []adafri.Workspace
	members     map[string][]adafri.Member
	invitations map[string][]adafri.Invitation
	listErr     error
	err         error
	listCalls   int
}

func (f *fakeWorkspaceAPI) List(context.Context) ([]adafri.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]adafri.Workspace(nil), f.workspaces...), nil
}

func (f *fakeWorkspaceAPI) Create(_ context.Context, opts *adafri.CreateWorkspaceOptions) (*adafri.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adafri.Workspace{ID: "new-" + opts.Name, Name: opts.Name}, nil
}

func (f *fakeWorkspaceAPI) Update(_ context.Context, id string, opts *adafri.UpdateWorkspaceOptions) (*adafri.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adafri.Workspace{ID: id, Name: opts.Name}, nil
}

func (f *fakeWorkspaceAPI) UpdateLogo(_ context.Context, id string, logo adafri.Upload) (*adafri.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adafri.Workspace{ID: id, Logo: "https://cdn.test/" + logo.FileName}, nil
}

func (f *fakeWorkspaceAPI) Members(_ context.Context, id string) ([]adafri.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[id], nil
}

func (f *fakeWorkspaceAPI) UpdateMember(_ context.Context, _, userID, role string) (*adafri.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adafri.Member{User: adafri.User{ID: userID}, Role: role}, nil
}

func (f *fakeWorkspaceAPI) RemoveMember(context.Context, string, string) error { return f.err }

func (f *fakeWorkspaceAPI) Invite(_ context.Context, id string, opts *adafri.InviteOptions) (*adafri.Invitation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adafri.Invitation{ID: "inv-" + opts.Email, WorkspaceID: id, Email: opts.Email}, nil
}

func (f *fakeWorkspaceAPI) Invitations(_ context.Context, id string) ([]adafri.Invitation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.invitations[id], nil
}

func (f *fakeWorkspaceAPI) RevokeInvitation(context.Context, string, string) error { return f.err }

func (f *fakeWorkspaceAPI) Join(_ context.Context, token string) (*adafri.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adafri.Workspace{ID: "joined-" + token, Name: "Joined"}, nil
}

// ── Channel API ──────────────────────────────────────────

type fakeChannelAPI struct {
	mu       sync.Mutex
	channels map[string]adafri.Channel
	lists    map[string][]adafri.Channel
	directs  map[string][]adafri.DirectMessageChannel
	// dmByUser is what CreateDirect returns, simulating server-side idempotency.
	dmByUser map[string]adafri.DirectMessageChannel
	err      error
	gets     int
}

func newFakeChannelAPI() *fakeChannelAPI {
	return &fakeChannelAPI{
		channels: make(map[string]adafri.Channel),
		lists:    make(map[string][]adafri.Channel),
		directs:  make(map[string][]adafri.DirectMessageChannel),
		dmByUser: make(map[string]adafri.DirectMessageChannel),
	}
}

func (f *fakeChannelAPI) List(_ context.Context, wid string) ([]adafri.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]adafri.Channel(nil), f.lists[wid]...), nil
}

func (f *fakeChannelAPI) Get(_ context.Context, id string) (*adafri.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	ch, ok := f.channels[id]
	if !ok {
		return nil, &adafri.APIError{Status: 404, Message: "Channel not found"}
	}
	return &ch, nil
}

func (f *fakeChannelAPI) Create(_ context.Context, opts *adafri.CreateChannelOptions) (*adafri.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adafri.Channel{ID: "ch-" + opts.Name, WorkspaceID: opts.WorkspaceID, Name: opts.Name}, nil
}

func (f *fakeChannelAPI) mutate(id string, fn func(*adafri.Channel)) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return &adafri.APIError{Status: 404, Message: "Channel not found"}
	}
	fn(&ch)
	f.channels[id] = ch
	return nil
}

func (f *fakeChannelAPI) Update(_ context.Context, id string, opts *adafri.UpdateChannelOptions) error {
	return f.mutate(id, func(ch *adafri.Channel) { ch.Name = opts.Name })
}

func (f *fakeChannelAPI) Archive(_ context.Context, id string) error {
	return f.mutate(id, func(ch *adafri.Channel) { ch.IsArchived = true })
}

func (f *fakeChannelAPI) Unarchive(_ context.Context, id string) error {
	return f.mutate(id, func(ch *adafri.Channel) { ch.IsArchived = false })
}

func (f *fakeChannelAPI) AddMember(_ context.Context, id, userID string) error {
	return f.mutate(id, func(ch *adafri.Channel) { ch.Members = append(ch.Members, adafri.User{ID: userID}) })
}

func (f *fakeChannelAPI) RemoveMember(_ context.Context, id, userID string) error {
	return f.mutate(id, func(ch *adafri.Channel) {
		kept := ch.Members[:0]
		for _, m := range ch.Members {
			if m.ID != userID {
				kept = append(kept, m)
			}
		}
		ch.Members = kept
	})
}

func (f *fakeChannelAPI) AddAdmin(_ context.Context, id, userID string) error {
	return f.mutate(id, func(ch *adafri.Channel) { ch.Admins = append(ch.Admins, userID) })
}

func (f *fakeChannelAPI) ListDirect(_ context.Context, wid string) ([]adafri.DirectMessageChannel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]adafri.DirectMessageChannel(nil), f.directs[wid]...), nil
}

func (f *fakeChannelAPI) CreateDirect(_ context.Context, wid, userID string) (*adafri.DirectMessageChannel, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dm, ok := f.dmByUser[userID]
	if !ok {
		dm = adafri.DirectMessageChannel{ID: "dm-" + userID, WorkspaceID: wid, ParticipantIDs: []string{"me", userID}}
		f.dmByUser[userID] = dm
	}
	return &dm, nil
}

// ── Message API ──────────────────────────────────────────

type fakeMessageAPI struct {
	mu sync.Mutex
	// history is newest first, keyed by conversation id.
	history  map[string][]adafri.Message
	threads  map[string]adafri.Thread
	sender   adafri.User
	nextID   int
	sent     []adafri.SendMessageOptions
	requests []adafri.HistoryOptions
	err      error
	sendErr  error
	search   []adafri.Message
	reacts   []string
}

func newFakeMessageAPI(sender string) *fakeMessageAPI {
	return &fakeMessageAPI{
		history: make(map[string][]adafri.Message),
		threads: make(map[string]adafri.Thread),
		sender:  adafri.User{ID: sender},
	}
}

func (f *fakeMessageAPI) Send(_ context.Context, opts *adafri.SendMessageOptions) (*adafri.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, *opts)
	f.nextID++
	return &adafri.Message{
		ID:              fmt.Sprintf("sent-%d", f.nextID),
		WorkspaceID:     opts.WorkspaceID,
		ChannelID:       opts.ChannelID,
		DirectMessageID: opts.DirectMessageID,
		ParentID:        opts.ParentID,
		Sender:          f.sender,
		Content:         opts.Content,
		CreatedAt:       at(100 + f.nextID),
	}, nil
}

func (f *fakeMessageAPI) page(id string, opts *adafri.HistoryOptions) (*adafri.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, *opts)
	var out []adafri.Message
	for _, m := range f.history[id] {
		if !opts.Before.IsZero() && !m.CreatedAt.Before(opts.Before) {
			continue
		}
		out = append(out, m)
		if len(out) == opts.Limit {
			break
		}
	}
	return &adafri.MessagePage{Messages: out}, nil
}

func (f *fakeMessageAPI) ListChannel(_ context.Context, id string, opts *adafri.HistoryOptions) (*adafri.MessagePage, error) {
	return f.page(id, opts)
}

func (f *fakeMessageAPI) ListDirect(_ context.Context, id string, opts *adafri.HistoryOptions) (*adafri.MessagePage, error) {
	return f.page(id, opts)
}

func (f *fakeMessageAPI) Thread(_ context.Context, id string) (*adafri.Thread, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.threads[id]
	if !ok {
		return nil, &adafri.APIError{Status: 404, Message: "Message not found"}
	}
	return &t, nil
}

func (f *fakeMessageAPI) Update(_ context.Context, id, content string) (*adafri.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	now := at(500)
	return &adafri.Message{ID: id, Content: content, IsEdited: true, UpdatedAt: &now}, nil
}

func (f *fakeMessageAPI) Delete(context.Context, string) error { return f.err }

func (f *fakeMessageAPI) AddReaction(_ context.Context, id, emoji string) error {
	f.reacts = append(f.reacts, "+"+id+":"+emoji)
	return f.err
}

func (f *fakeMessageAPI) RemoveReaction(_ context.Context, id, emoji string) error {
	f.reacts = append(f.reacts, "-"+id+":"+emoji)
	return f.err
}

func (f *fakeMessageAPI) Search(_ context.Context, opts *adafri.SearchOptions) ([]adafri.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if opts.Query == "" {
		return nil, errors.New("empty query")
	}
	return f.search, nil
}

// staticSelection is a fixed ConversationSelector.
type staticSelection struct{ sel adafri.Selection }

func (s *staticSelection) Selection() adafri.Selection { return s.sel }

func (s *staticSelection) set(wid string, conv adafri.Conversation) {
	s.sel = adafri.Selection{WorkspaceID: wid, Conversation: conv}
}
