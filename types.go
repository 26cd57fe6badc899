package adafri

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// User is the public profile attached to members, senders and participants.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Name returns the best display label for the user.
func (u User) Name() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return u.Username
	}
	return u.ID
}

// Upload is a file sent as part of a multipart request.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// ============================================================================
// Workspace Types
// ============================================================================

type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Logo      string    `json:"logo,omitempty"`
	Members   []Member  `json:"members,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Member struct {
	User     User      `json:"user"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt,omitempty"`
}

type Invitation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Email       string    `json:"email"`
	Role        string    `json:"role,omitempty"`
	Status      string    `json:"status,omitempty"`
	Token       string    `json:"token,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

type CreateWorkspaceOptions struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateWorkspaceOptions struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type InviteOptions struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// ============================================================================
// Channel Types
// ============================================================================

type Channel struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	IsArchived  bool      `json:"isArchived"`
	Members     []User    `json:"members,omitempty"`
	Admins      []string  `json:"admins,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// DirectMessageChannel is the implicit channel between a small fixed set of users.
type DirectMessageChannel struct {
	ID             string    `json:"id"`
	WorkspaceID    string    `json:"workspaceId"`
	ParticipantIDs []string  `json:"participantIds"`
	Participants   []User    `json:"participants,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

type CreateChannelOptions struct {
	WorkspaceID string   `json:"workspaceId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	IsPrivate   bool     `json:"isPrivate,omitempty"`
	MemberIDs   []string `json:"members,omitempty"`
}

type UpdateChannelOptions struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	IsPrivate   *bool  `json:"isPrivate,omitempty"`
}

// ============================================================================
// Conversation
// ============================================================================

// ConversationKind tags which timeline a message belongs to.
type ConversationKind string

const (
	KindChannel ConversationKind = "channel"
	KindDirect  ConversationKind = "direct"
)

// Conversation identifies exactly one channel or one direct message thread.
// The zero value means "nothing selected".
type Conversation struct {
	Kind ConversationKind
	ID   string
}

func ChannelConversation(id string) Conversation { return Conversation{Kind: KindChannel, ID: id} }
func DirectConversation(id string) Conversation  { return Conversation{Kind: KindDirect, ID: id} }

func (c Conversation) IsZero() bool { return c.ID == "" }

func (c Conversation) String() string {
	if c.IsZero() {
		return "none"
	}
	return string(c.Kind) + ":" + c.ID
}

// conversationOf maps the wire pair (channelId, directMessageId) to a tagged
// conversation. It reports false when both or neither are set.
func conversationOf(channelID, directMessageID string) (Conversation, bool) {
	switch {
	case channelID != "" && directMessageID == "":
		return ChannelConversation(channelID), true
	case directMessageID != "" && channelID == "":
		return DirectConversation(directMessageID), true
	}
	return Conversation{}, false
}

// ============================================================================
// Message Types
// ============================================================================

// DeletedMessageContent replaces the content of a soft-deleted message.
const DeletedMessageContent = "[This message has been deleted]"

type Attachment struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

type Message struct {
	ID              string       `json:"id"`
	WorkspaceID     string       `json:"workspaceId"`
	ChannelID       string       `json:"channelId,omitempty"`
	DirectMessageID string       `json:"directMessageId,omitempty"`
	ParentID        string       `json:"parentId,omitempty"`
	Sender          User         `json:"sender"`
	Content         string       `json:"content"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	Reactions       []Reaction   `json:"reactions,omitempty"`
	IsDeleted       bool         `json:"isDeleted"`
	IsEdited        bool         `json:"isEdited,omitempty"`
	HasThread       bool         `json:"hasThread"`
	ThreadCount     int          `json:"threadCount"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       *time.Time   `json:"updatedAt,omitempty"`
}

// Conversation returns the timeline that owns the message.
func (m *Message) Conversation() (Conversation, bool) {
	return conversationOf(m.ChannelID, m.DirectMessageID)
}

// clone copies the slices so a snapshot handed to callers cannot alias store state.
func (m Message) clone() Message {
	m.Attachments = append([]Attachment(nil), m.Attachments...)
	if m.Reactions != nil {
		rs := make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			r.Users = append([]string(nil), r.Users...)
			rs[i] = r
		}
		m.Reactions = rs
	}
	return m
}

// Thread is a parent message plus its replies, oldest reply first.
type Thread struct {
	ParentMessage Message   `json:"parentMessage"`
	Messages      []Message `json:"messages"`
}

func (t *Thread) clone() *Thread {
	out := &Thread{ParentMessage: t.ParentMessage.clone(), Messages: make([]Message, len(t.Messages))}
	for i, m := range t.Messages {
		out.Messages[i] = m.clone()
	}
	return out
}

// MessagePage is one page of a conversation history, newest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  *bool     `json:"hasMore,omitempty"`
}

// UnmarshalJSON accepts either the {messages, hasMore} object or a bare array.
func (p *MessagePage) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &p.Messages)
	}
	type page MessagePage
	var raw page
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = MessagePage(raw)
	return nil
}

// More reports whether older messages exist, falling back to a full-page check.
func (p *MessagePage) More(limit int) bool {
	if p.HasMore != nil {
		return *p.HasMore
	}
	return limit > 0 && len(p.Messages) >= limit
}

type SendMessageOptions struct {
	WorkspaceID     string   `json:"workspaceId"`
	ChannelID       string   `json:"channelId,omitempty"`
	DirectMessageID string   `json:"directMessageId,omitempty"`
	ParentID        string   `json:"parentId,omitempty"`
	Content         string   `json:"content"`
	Attachments     []Upload `json:"-"`
}

type HistoryOptions struct {
	Limit  int
	Before time.Time
}

type SearchOptions struct {
	WorkspaceID string
	Query       string
	ChannelID   string
	Limit       int
}

// ============================================================================
// Typing
// ============================================================================

// TypingIndicator is an ephemeral "user is typing" entry.
type TypingIndicator struct {
	UserID       string
	WorkspaceID  string
	Conversation Conversation
}

// TypingScope addresses an outbound typing signal.
type TypingScope struct {
	WorkspaceID  string
	Conversation Conversation
}

func (s TypingScope) payload() map[string]string {
	p := map[string]string{"workspaceId": s.WorkspaceID}
	switch s.Conversation.Kind {
	case KindChannel:
		p["channelId"] = s.Conversation.ID
	case KindDirect:
		p["dmId"] = s.Conversation.ID
	}
	return p
}
