package adafri

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPageSize is the number of messages requested per history page.
const DefaultPageSize = 50

// MessageAPI is the REST surface the message store needs.
type MessageAPI interface {
	Send(ctx context.Context, opts *SendMessageOptions) (*Message, error)
	ListChannel(ctx context.Context, channelID string, opts *HistoryOptions) (*MessagePage, error)
	ListDirect(ctx context.Context, directMessageID string, opts *HistoryOptions) (*MessagePage, error)
	Thread(ctx context.Context, messageID string) (*Thread, error)
	Update(ctx context.Context, messageID, content string) (*Message, error)
	Delete(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error
	Search(ctx context.Context, opts *SearchOptions) ([]Message, error)
}

var _ MessageAPI = (*MessagesClient)(nil)

// ConversationSelector reports the open conversation. *ChannelStore implements it.
type ConversationSelector interface {
	Selection() Selection
}

var _ ConversationSelector = (*ChannelStore)(nil)

// PaginationKey is the "workspaceId:type:id" key under which history cursors are kept.
func PaginationKey(workspaceID string, conv Conversation) string {
	return workspaceID + ":" + string(conv.Kind) + ":" + conv.ID
}

type threadKey struct {
	workspaceID string
	parentID    string
}

type pageState struct {
	hasMore bool
	cursor  time.Time
}

// MessageStore caches conversation timelines (newest first) and threads, and
// reconciles them with realtime events.
type MessageStore struct {
	statusBoard

	api      MessageAPI
	rt       Realtime
	selector ConversationSelector
	typing   *TypingTracker
	log      *zap.Logger
	throttle time.Duration

	mu            sync.RWMutex
	currentUserID string
	timelines     map[string]map[Conversation][]Message
	pages         map[string]pageState
	threads       map[threadKey]*Thread
	activeThread  threadKey
	limiters      map[string]*rate.Limiter
}

// NewMessageStore creates the store. A nil typing tracker gets a default one.
func NewMessageStore(api MessageAPI, rt Realtime, selector ConversationSelector, typing *TypingTracker, opts ...StoreOption) *MessageStore {
	cfg := newStoreConfig("messages", opts)
	if typing == nil {
		typing = NewTypingTracker(0)
	}
	s := &MessageStore{
		api:       api,
		rt:        rt,
		selector:  selector,
		typing:    typing,
		log:       cfg.log,
		throttle:  cfg.typingThrottle,
		timelines: make(map[string]map[Conversation][]Message),
		pages:     make(map[string]pageState),
		threads:   make(map[threadKey]*Thread),
		limiters:  make(map[string]*rate.Limiter),
	}
	s.statusBoard.configure(cfg)
	return s
}

// SetCurrentUser sets the id used for sender-echo suppression.
func (s *MessageStore) SetCurrentUser(userID string) {
	s.mu.Lock()
	s.currentUserID = userID
	s.mu.Unlock()
}

func (s *MessageStore) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentUserID
}

// ── Reads ────────────────────────────────────────────────

// Messages returns a copy of a timeline, newest first.
func (s *MessageStore) Messages(workspaceID string, conv Conversation) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.timelines[workspaceID][conv])
}

// HasMore reports whether older history is available for a conversation.
func (s *MessageStore) HasMore(workspaceID string, conv Conversation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages[PaginationKey(workspaceID, conv)].hasMore
}

// Cursor returns the timestamp of the oldest loaded message.
func (s *MessageStore) Cursor(workspaceID string, conv Conversation) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[PaginationKey(workspaceID, conv)]
	if !ok || p.cursor.IsZero() {
		return time.Time{}, false
	}
	return p.cursor, true
}

// Thread returns a copy of a cached thread.
func (s *MessageStore) Thread(workspaceID, parentID string) (*Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadKey{workspaceID, parentID}]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// ActiveThread returns the workspace and parent id of the open thread, if any.
func (s *MessageStore) ActiveThread() (workspaceID, parentID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeThread.workspaceID, s.activeThread.parentID
}

func (s *MessageStore) Typing() *TypingTracker { return s.typing }

// ── History ──────────────────────────────────────────────

// FetchChannelMessages replaces the channel timeline with its latest page.
// Failures are recorded, not returned.
func (s *MessageStore) FetchChannelMessages(ctx context.Context, workspaceID, channelID string, limit int) {
	s.fetchLatest(ctx, "fetchChannelMessages", workspaceID, ChannelConversation(channelID), limit)
}

// FetchDirectMessages replaces the DM timeline with its latest page.
// Failures are recorded, not returned.
func (s *MessageStore) FetchDirectMessages(ctx context.Context, workspaceID, directMessageID string, limit int) {
	s.fetchLatest(ctx, "fetchDirectMessages", workspaceID, DirectConversation(directMessageID), limit)
}

func (s *MessageStore) fetchLatest(ctx context.Context, op, workspaceID string, conv Conversation, limit int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	pk := PaginationKey(workspaceID, conv)
	_ = s.track(opKey(op, pk), "Failed to fetch messages", func() error {
		page, err := s.list(ctx, conv, &HistoryOptions{Limit: limit})
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.timelineLocked(workspaceID)[conv] = cloneMessages(page.Messages)
		s.pages[pk] = pageState{hasMore: page.More(limit), cursor: oldest(page.Messages, time.Time{})}
		return nil
	})
}

// FetchOlderMessages loads the page before the cursor and appends it at the
// oldest end, skipping ids already loaded. Without a cursor it does nothing.
func (s *MessageStore) FetchOlderMessages(ctx context.Context, workspaceID string, conv Conversation, limit int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	pk := PaginationKey(workspaceID, conv)
	s.mu.RLock()
	state, ok := s.pages[pk]
	s.mu.RUnlock()
	if !ok || state.cursor.IsZero() {
		return
	}

	_ = s.track(opKey("fetchOlderMessages", pk), "Failed to fetch older messages", func() error {
		page, err := s.list(ctx, conv, &HistoryOptions{Limit: limit, Before: state.cursor})
		if err != nil {
			return err
		}
		if len(page.Messages) == 0 {
			return nil
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		timeline := s.timelineLocked(workspaceID)
		list := timeline[conv]
		seen := make(map[string]struct{}, len(list))
		for _, m := range list {
			seen[m.ID] = struct{}{}
		}
		for _, m := range page.Messages {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			list = append(list, m.clone())
		}
		timeline[conv] = list
		s.pages[pk] = pageState{hasMore: page.More(limit), cursor: oldest(page.Messages, state.cursor)}
		return nil
	})
}

func (s *MessageStore) list(ctx context.Context, conv Conversation, opts *HistoryOptions) (*MessagePage, error) {
	if conv.Kind == KindDirect {
		return s.api.ListDirect(ctx, conv.ID, opts)
	}
	return s.api.ListChannel(ctx, conv.ID, opts)
}

// FetchThreadMessages loads and caches the thread under parentID.
// Failures are recorded, not returned.
func (s *MessageStore) FetchThreadMessages(ctx context.Context, workspaceID, parentID string) {
	_ = s.track(opKey("fetchThreadMessages", workspaceID, parentID), "Failed to fetch thread", func() error {
		t, err := s.api.Thread(ctx, parentID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.threads[threadKey{workspaceID, parentID}] = t.clone()
		s.mu.Unlock()
		return nil
	})
}

// SearchMessages runs a full-text search in a workspace.
func (s *MessageStore) SearchMessages(ctx context.Context, workspaceID, query string) ([]Message, error) {
	var out []Message
	err := s.track(opKey("searchMessages", workspaceID), "Failed to search messages", func() error {
		res, err := s.api.Search(ctx, &SearchOptions{WorkspaceID: workspaceID, Query: query})
		out = res
		return err
	})
	return out, err
}

// ── Sending ──────────────────────────────────────────────

// SendMessage posts to the selected channel or DM and inserts the result at
// the newest end of its timeline.
func (s *MessageStore) SendMessage(ctx context.Context, workspaceID, content string, attachments ...Upload) (*Message, error) {
	var out *Message
	err := s.track(opKey("sendMessage", workspaceID), "Failed to send message", func() error {
		conv := s.selector.Selection().Conversation
		if conv.IsZero() {
			return ErrNoConversationSelected
		}
		msg, err := s.api.Send(ctx, sendOptions(workspaceID, conv, "", content, attachments))
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.insertLocked(workspaceID, conv, *msg)
		s.mu.Unlock()
		out = msg
		return nil
	})
	return out, err
}

// SendThreadMessage posts a reply to parentID and appends it to the cached
// thread, active or not. The parent's thread count is left to the
// new_thread_message event.
func (s *MessageStore) SendThreadMessage(ctx context.Context, workspaceID, parentID, content string, attachments ...Upload) (*Message, error) {
	var out *Message
	err := s.track(opKey("sendThreadMessage", workspaceID, parentID), "Failed to send reply", func() error {
		conv := s.selector.Selection().Conversation
		if conv.IsZero() {
			return ErrNoConversationSelected
		}
		msg, err := s.api.Send(ctx, sendOptions(workspaceID, conv, parentID, content, attachments))
		if err != nil {
			return err
		}
		s.mu.Lock()
		if t, ok := s.threads[threadKey{workspaceID, parentID}]; ok && !hasMessage(t.Messages, msg.ID) {
			t.Messages = append(t.Messages, msg.clone())
		}
		s.mu.Unlock()
		out = msg
		return nil
	})
	return out, err
}

func sendOptions(workspaceID string, conv Conversation, parentID, content string, attachments []Upload) *SendMessageOptions {
	opts := &SendMessageOptions{
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		Content:     content,
		Attachments: attachments,
	}
	if conv.Kind == KindDirect {
		opts.DirectMessageID = conv.ID
	} else {
		opts.ChannelID = conv.ID
	}
	return opts
}

// ── Mutations ────────────────────────────────────────────

// UpdateMessage edits a message and patches every cached copy of it.
func (s *MessageStore) UpdateMessage(ctx context.Context, messageID, content string) (*Message, error) {
	var out *Message
	err := s.track(opKey("updateMessage", messageID), "Failed to update message", func() error {
		msg, err := s.api.Update(ctx, messageID, content)
		if err != nil {
			return err
		}
		src := Message{Content: content}
		if msg != nil {
			src = *msg
		}
		s.applyPatch("", messageID, editPatch(src))
		out = msg
		return nil
	})
	return out, err
}

// DeleteMessage soft-deletes a message and patches every cached copy of it.
func (s *MessageStore) DeleteMessage(ctx context.Context, messageID string) error {
	return s.track(opKey("deleteMessage", messageID), "Failed to delete message", func() error {
		if err := s.api.Delete(ctx, messageID); err != nil {
			return err
		}
		s.applyPatch("", messageID, softDelete)
		return nil
	})
}

// AddReaction only calls the API. The reaction set is applied from the
// reaction_update event.
func (s *MessageStore) AddReaction(ctx context.Context, messageID, emoji string) error {
	return s.track(opKey("addReaction", messageID), "Failed to add reaction", func() error {
		return s.api.AddReaction(ctx, messageID, emoji)
	})
}

// RemoveReaction only calls the API, like AddReaction.
func (s *MessageStore) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	return s.track(opKey("removeReaction", messageID), "Failed to remove reaction", func() error {
		return s.api.RemoveReaction(ctx, messageID, emoji)
	})
}

// applyPatch runs fn on every cached copy of messageID: timeline entries,
// thread parents and thread replies. An empty workspaceID matches all workspaces.
func (s *MessageStore) applyPatch(workspaceID, messageID string, fn func(*Message)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patchLocked(workspaceID, messageID, fn)
}

func (s *MessageStore) patchLocked(workspaceID, messageID string, fn func(*Message)) int {
	n := 0
	for wid, convs := range s.timelines {
		if workspaceID != "" && wid != workspaceID {
			continue
		}
		for _, list := range convs {
			for i := range list {
				if list[i].ID == messageID {
					fn(&list[i])
					n++
				}
			}
		}
	}
	for key, t := range s.threads {
		if workspaceID != "" && key.workspaceID != workspaceID {
			continue
		}
		if t.ParentMessage.ID == messageID {
			fn(&t.ParentMessage)
			n++
		}
		for i := range t.Messages {
			if t.Messages[i].ID == messageID {
				fn(&t.Messages[i])
				n++
			}
		}
	}
	return n
}

func editPatch(src Message) func(*Message) {
	return func(m *Message) {
		m.Content = src.Content
		m.IsEdited = true
		if src.UpdatedAt != nil {
			t := *src.UpdatedAt
			m.UpdatedAt = &t
		}
	}
}

func softDelete(m *Message) {
	m.Content = DeletedMessageContent
	m.IsDeleted = true
}

func reactionsPatch(reactions []Reaction) func(*Message) {
	return func(m *Message) {
		m.Reactions = Message{Reactions: reactions}.clone().Reactions
	}
}

// ── Threads ──────────────────────────────────────────────

// SetActiveThread leaves the previous thread room and joins parentID's.
// An empty parentID closes the active thread.
func (s *MessageStore) SetActiveThread(ctx context.Context, workspaceID, parentID string) {
	var next threadKey
	if parentID != "" {
		next = threadKey{workspaceID, parentID}
	}
	s.mu.Lock()
	prev := s.activeThread
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.activeThread = next
	s.mu.Unlock()

	if prev.parentID != "" {
		if err := s.rt.LeaveThread(ctx, prev.workspaceID, prev.parentID); err != nil {
			s.log.Debug("leave thread", zap.String("message_id", prev.parentID), zap.Error(err))
		}
	}
	if parentID != "" {
		if err := s.rt.JoinThread(ctx, workspaceID, parentID); err != nil {
			s.log.Debug("join thread", zap.String("message_id", parentID), zap.Error(err))
		}
	}
}

// ── Typing ───────────────────────────────────────────────

// StartTyping signals typing in the selected conversation, at most once per
// throttle interval. It does nothing when no conversation is selected.
func (s *MessageStore) StartTyping(ctx context.Context, workspaceID string) {
	conv := s.selector.Selection().Conversation
	if conv.IsZero() {
		return
	}
	if !s.allowTyping(PaginationKey(workspaceID, conv)) {
		return
	}
	if err := s.rt.SendTypingStart(ctx, TypingScope{WorkspaceID: workspaceID, Conversation: conv}); err != nil {
		s.log.Debug("typing start", zap.Stringer("conversation", conv), zap.Error(err))
	}
}

// StopTyping signals that typing stopped in the selected conversation.
func (s *MessageStore) StopTyping(ctx context.Context, workspaceID string) {
	conv := s.selector.Selection().Conversation
	if conv.IsZero() {
		return
	}
	s.mu.Lock()
	delete(s.limiters, PaginationKey(workspaceID, conv))
	s.mu.Unlock()
	if err := s.rt.SendTypingStop(ctx, TypingScope{WorkspaceID: workspaceID, Conversation: conv}); err != nil {
		s.log.Debug("typing stop", zap.Stringer("conversation", conv), zap.Error(err))
	}
}

func (s *MessageStore) allowTyping(key string) bool {
	if s.throttle <= 0 {
		return true
	}
	s.mu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.throttle), 1)
		s.limiters[key] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

// ── Realtime ─────────────────────────────────────────────

// SetupSocketListeners routes every message event to the store. Calling it
// again replaces the previous registration.
func (s *MessageStore) SetupSocketListeners() {
	for _, t := range EventTypes {
		s.rt.On(t, s.HandleEvent)
	}
}

func (s *MessageStore) TeardownSocketListeners() {
	for _, t := range EventTypes {
		s.rt.Off(t)
	}
}

// HandleEvent applies one realtime event to the cached state.
func (s *MessageStore) HandleEvent(ev Event) {
	s.metrics.observeEvent(ev.Type())

	switch e := ev.(type) {
	case NewMessageEvent:
		s.onNewMessage(e.Message)
	case MessageUpdateEvent:
		s.applyPatch(e.Message.WorkspaceID, e.Message.ID, editPatch(e.Message))
	case MessageDeleteEvent:
		s.applyPatch(e.WorkspaceID, e.MessageID, softDelete)
	case NewThreadMessageEvent:
		s.onThreadMessage(e)
	case ReactionUpdateEvent:
		s.applyPatch(e.WorkspaceID, e.MessageID, reactionsPatch(e.Reactions))
	case TypingStartEvent:
		s.typing.Add(e.Indicator)
	case TypingStopEvent:
		s.typing.RemoveUser(e.Indicator.UserID)
	}
}

func (s *MessageStore) onNewMessage(m Message) {
	s.typing.RemoveUser(m.Sender.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentUserID != "" && m.Sender.ID == s.currentUserID {
		s.metrics.observeEcho()
		return
	}
	conv, ok := m.Conversation()
	if !ok {
		s.log.Debug("dropping message without conversation", zap.String("message_id", m.ID))
		return
	}
	s.insertLocked(m.WorkspaceID, conv, m)
}

func (s *MessageStore) onThreadMessage(e NewThreadMessageEvent) {
	s.typing.RemoveUser(e.Message.Sender.ID)

	wid := e.Message.WorkspaceID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchLocked(wid, e.ParentID, func(p *Message) {
		p.ThreadCount++
		p.HasThread = true
	})
	t, ok := s.threads[threadKey{wid, e.ParentID}]
	if !ok {
		return
	}
	// Replies are deduplicated by id: the sender's own reply is usually
	// already cached by SendThreadMessage.
	if hasMessage(t.Messages, e.Message.ID) {
		if s.currentUserID != "" && e.Message.Sender.ID == s.currentUserID {
			s.metrics.observeEcho()
		}
		return
	}
	t.Messages = append(t.Messages, e.Message.clone())
}

func hasMessage(list []Message, id string) bool {
	for i := range list {
		if list[i].ID == id {
			return true
		}
	}
	return false
}

// insertLocked puts m at the newest end of its timeline.
func (s *MessageStore) insertLocked(workspaceID string, conv Conversation, m Message) {
	timeline := s.timelineLocked(workspaceID)
	timeline[conv] = append([]Message{m.clone()}, timeline[conv]...)
}

func (s *MessageStore) timelineLocked(workspaceID string) map[Conversation][]Message {
	t, ok := s.timelines[workspaceID]
	if !ok {
		t = make(map[Conversation][]Message)
		s.timelines[workspaceID] = t
	}
	return t
}

// ClearMessages drops every cached timeline, thread and typing entry.
func (s *MessageStore) ClearMessages() {
	s.mu.Lock()
	s.timelines = make(map[string]map[Conversation][]Message)
	s.pages = make(map[string]pageState)
	s.threads = make(map[threadKey]*Thread)
	s.activeThread = threadKey{}
	s.limiters = make(map[string]*rate.Limiter)
	s.mu.Unlock()
	s.typing.Clear()
	s.statusBoard.reset()
}

func cloneMessages(list []Message) []Message {
	if list == nil {
		return nil
	}
	out := make([]Message, len(list))
	for i, m := range list {
		out[i] = m.clone()
	}
	return out
}

// oldest returns the earliest of floor and every CreatedAt in list. A zero
// floor is ignored.
func oldest(list []Message, floor time.Time) time.Time {
	out := floor
	for _, m := range list {
		if out.IsZero() || m.CreatedAt.Before(out) {
			out = m.CreatedAt
		}
	}
	return out
}
