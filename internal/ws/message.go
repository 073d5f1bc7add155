package ws

import "encoding/json"

// Event types pushed to clients. Reconcilers subscribe to the same stream via
// Hub.Listen.
const (
	EventNewMessage        = "new_message"
	EventChatCreated       = "chat_created"
	EventChatDeleted       = "chat_deleted"
	EventMemberAdded       = "member_added"
	EventMemberRemoved     = "member_removed"
	EventRoleChanged       = "role_changed"
	EventChatLabelsChanged = "chat_labels_changed"
	EventMessageRead       = "message_read"
	EventError             = "error"
)

// Session events: the client selects its open conversation, the server pushes
// derived snapshots back.
const (
	EventSelectChat        = "select_chat"
	EventChatList          = "chat_list"
	EventConversationState = "conversation_state"
)

// IncomingMessage is what a websocket client sends.
type IncomingMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OutgoingMessage is what the hub delivers to clients and listeners.
type OutgoingMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type SendMessagePayload struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

type MarkReadPayload struct {
	ChatID string `json:"chat_id"`
}

type SelectChatPayload struct {
	ChatID string `json:"chat_id"`
}

type ChatEventPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
