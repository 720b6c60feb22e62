package event

import (
	"encoding/json"
	"time"

	"github.com/chatsync/internal/model"
)

type Type string

// Inbound push events.
const (
	TypeMessageNew        Type = "message:new"
	TypeMessageEdited     Type = "message:edited"
	TypeMessageDeleted    Type = "message:deleted"
	TypeMessageReacted    Type = "message:reacted"
	TypeMessagesRead      Type = "messages:read"
	TypeUserTyping        Type = "user:typing"
	TypeUserStoppedTyping Type = "user:stopped-typing"
	TypeMessageError      Type = "message:error"
	TypeChatCreated       Type = "chat:created"
	TypeChatUpdated       Type = "chat:updated"
	TypeChatDeleted       Type = "chat:deleted"
	TypeChatRestored      Type = "chat:restored"
	TypeChatLeft          Type = "chat:left"
	TypeChatRemoved       Type = "chat:removed"
)

// Outbound requests.
const (
	TypeJoinChat      Type = "join:chat"
	TypeLeaveChat     Type = "leave:chat"
	TypeMessageSend   Type = "message:send"
	TypeMessageDelete Type = "message:delete"
	TypeMessageEdit   Type = "message:edit"
	TypeMessageReact  Type = "message:react"
	TypeTypingStart   Type = "typing:start"
	TypeTypingStop    Type = "typing:stop"
)

// Envelope is the wire frame in both directions: a type tag plus a
// type-specific payload.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Outbound payloads (typed structs, no map[string]any) ---

type SendMessage struct {
	ChatID         string             `json:"chat_id" validate:"required"`
	Text           string             `json:"text" validate:"required_without=Attachments"`
	ReplyTo        string             `json:"reply_to,omitempty"`
	Attachments    []model.Attachment `json:"attachments,omitempty"`
	MentionedUsers []string           `json:"mentioned_users,omitempty"`
	MentionAll     bool               `json:"mention_all,omitempty"`
}

type EditMessage struct {
	MessageID string `json:"message_id" validate:"required"`
	Text      string `json:"text" validate:"required"`
}

type DeleteMessage struct {
	MessageID string `json:"message_id" validate:"required"`
}

type ReactMessage struct {
	MessageID string `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

type ChatRef struct {
	ChatID string `json:"chat_id" validate:"required"`
}

// --- Inbound payloads ---

type MessageDeleted struct {
	MessageID string         `json:"message_id"`
	ChatID    string         `json:"chat_id"`
	Message   *model.Message `json:"message,omitempty"`
}

type MessagesRead struct {
	ChatID string    `json:"chat_id"`
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at,omitempty"`
}

type TypingUser struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

type SendError struct {
	ChatID string `json:"chat_id"`
	Reason string `json:"reason"`
}

// ChatRestored carries the restored chat and, optionally, the single new
// message whose arrival caused the restoration.
type ChatRestored struct {
	Chat       model.Chat     `json:"chat"`
	NewMessage *model.Message `json:"new_message,omitempty"`
}

// ChatMembership is the payload of chat:left and chat:removed.
type ChatMembership struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}
