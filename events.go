package adafri

import (
	"encoding/json"
	"fmt"
)

// EventType names an inbound realtime event.
type EventType string

const (
	EventNewMessage       EventType = "new_message"
	EventMessageUpdate    EventType = "message_update"
	EventMessageDelete    EventType = "message_delete"
	EventNewThreadMessage EventType = "new_thread_message"
	EventReactionUpdate   EventType = "reaction_update"
	EventTypingStart      EventType = "typing_start"
	EventTypingStop       EventType = "typing_stop"
)

// EventTypes lists every event the stores subscribe to.
var EventTypes = []EventType{
	EventNewMessage,
	EventMessageUpdate,
	EventMessageDelete,
	EventNewThreadMessage,
	EventReactionUpdate,
	EventTypingStart,
	EventTypingStop,
}

// Event is the closed set of inbound realtime events. Handlers type-switch on it.
type Event interface {
	Type() EventType
	isEvent()
}

// NewMessageEvent carries a message posted to a channel or DM timeline.
type NewMessageEvent struct{ Message Message }

// MessageUpdateEvent carries the edited message.
type MessageUpdateEvent struct{ Message Message }

// MessageDeleteEvent identifies a soft-deleted message and where it lives.
type MessageDeleteEvent struct {
	MessageID   string
	WorkspaceID string
	// Conversation is zero when the server did not say which timeline owns it.
	Conversation Conversation
	ParentID     string
}

// NewThreadMessageEvent carries a reply to ParentID.
type NewThreadMessageEvent struct {
	ParentID string
	Message  Message
}

// ReactionUpdateEvent carries the authoritative reaction set of a message.
type ReactionUpdateEvent struct {
	MessageID    string
	WorkspaceID  string
	Conversation Conversation
	Reactions    []Reaction
}

type TypingStartEvent struct{ Indicator TypingIndicator }
type TypingStopEvent struct{ Indicator TypingIndicator }

func (NewMessageEvent) Type() EventType       { return EventNewMessage }
func (MessageUpdateEvent) Type() EventType    { return EventMessageUpdate }
func (MessageDeleteEvent) Type() EventType    { return EventMessageDelete }
func (NewThreadMessageEvent) Type() EventType { return EventNewThreadMessage }
func (ReactionUpdateEvent) Type() EventType   { return EventReactionUpdate }
func (TypingStartEvent) Type() EventType      { return EventTypingStart }
func (TypingStopEvent) Type() EventType       { return EventTypingStop }

func (NewMessageEvent) isEvent()       {}
func (MessageUpdateEvent) isEvent()    {}
func (MessageDeleteEvent) isEvent()    {}
func (NewThreadMessageEvent) isEvent() {}
func (ReactionUpdateEvent) isEvent()   {}
func (TypingStartEvent) isEvent()      {}
func (TypingStopEvent) isEvent()       {}

// ============================================================================
// Wire format
// ============================================================================

// Envelope is the wire format for all realtime frames in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

type command struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	RequestID string      `json:"requestId,omitempty"`
}

// scopePayload is the shared {messageId, workspaceId, channelId|directMessageId} shape.
type scopePayload struct {
	MessageID       string     `json:"messageId"`
	WorkspaceID     string     `json:"workspaceId"`
	ChannelID       string     `json:"channelId,omitempty"`
	DirectMessageID string     `json:"directMessageId,omitempty"`
	ParentID        string     `json:"parentId,omitempty"`
	Reactions       []Reaction `json:"reactions,omitempty"`
}

func (p scopePayload) conversation() Conversation {
	c, _ := conversationOf(p.ChannelID, p.DirectMessageID)
	return c
}

type typingPayload struct {
	UserID          string `json:"userId"`
	WorkspaceID     string `json:"workspaceId"`
	ChannelID       string `json:"channelId,omitempty"`
	DMID            string `json:"dmId,omitempty"`
	DirectMessageID string `json:"directMessageId,omitempty"`
}

func (p typingPayload) indicator() TypingIndicator {
	dm := p.DMID
	if dm == "" {
		dm = p.DirectMessageID
	}
	c, _ := conversationOf(p.ChannelID, dm)
	return TypingIndicator{UserID: p.UserID, WorkspaceID: p.WorkspaceID, Conversation: c}
}

type threadPayload struct {
	ParentID string   `json:"parentId"`
	Message  *Message `json:"message"`
}

// DecodeEvent turns a wire envelope into a typed Event. Unknown event types
// return an error so the caller can log and drop them.
func DecodeEvent(env Envelope) (Event, error) {
	switch EventType(env.Type) {
	case EventNewMessage:
		var m Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return NewMessageEvent{Message: m}, nil

	case EventMessageUpdate:
		var m Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return MessageUpdateEvent{Message: m}, nil

	case EventMessageDelete:
		var p scopePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if p.MessageID == "" {
			return nil, fmt.Errorf("decode %s: missing messageId", env.Type)
		}
		return MessageDeleteEvent{
			MessageID:    p.MessageID,
			WorkspaceID:  p.WorkspaceID,
			Conversation: p.conversation(),
			ParentID:     p.ParentID,
		}, nil

	case EventNewThreadMessage:
		// Either {parentId, message} or the bare reply carrying its own parentId.
		var p threadPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		var m Message
		if p.Message != nil {
			m = *p.Message
		} else if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		parent := p.ParentID
		if parent == "" {
			parent = m.ParentID
		}
		if parent == "" {
			return nil, fmt.Errorf("decode %s: missing parentId", env.Type)
		}
		if m.ParentID == "" {
			m.ParentID = parent
		}
		return NewThreadMessageEvent{ParentID: parent, Message: m}, nil

	case EventReactionUpdate:
		var p scopePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ReactionUpdateEvent{
			MessageID:    p.MessageID,
			WorkspaceID:  p.WorkspaceID,
			Conversation: p.conversation(),
			Reactions:    p.Reactions,
		}, nil

	case EventTypingStart, EventTypingStop:
		var p typingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if EventType(env.Type) == EventTypingStart {
			return TypingStartEvent{Indicator: p.indicator()}, nil
		}
		return TypingStopEvent{Indicator: p.indicator()}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", env.Type)
}
