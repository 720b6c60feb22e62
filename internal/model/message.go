package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatsync/internal/identity"
)

// optimisticPrefix marks locally fabricated message ids awaiting the
// server's authoritative record.
const optimisticPrefix = "temp-"

type MessageStatus string

const (
	MessageStatusSent MessageStatus = "sent"
	MessageStatusRead MessageStatus = "read"
)

type Message struct {
	ID            string        `json:"id"`
	ChatID        string        `json:"chat_id"`
	SenderID      string        `json:"sender_id"`
	Sender        *UserPublic   `json:"sender,omitempty"`
	Text          string        `json:"text"`
	Attachments   []Attachment  `json:"attachments,omitempty"`
	ReplyToID     string        `json:"reply_to_id,omitempty"`
	ReplyTo       *Message      `json:"reply_to,omitempty"`
	ForwardedFrom string        `json:"forwarded_from,omitempty"`
	Reactions     []Reaction    `json:"reactions,omitempty"`
	Status        MessageStatus `json:"status,omitempty"`
	Edited        bool          `json:"edited,omitempty"`
	Deleted       bool          `json:"deleted,omitempty"`

	MentionedUserIDs []string `json:"mentioned_users,omitempty"`
	MentionAll       bool     `json:"mention_all,omitempty"`

	// Optimistic is set on locally fabricated placeholders and cleared
	// when the server's record replaces them.
	Optimistic bool `json:"-"`

	// CreatedAt is the sole ordering key inside a chat's stream.
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON tolerates the id shapes seen on inbound frames: the
// message, its chat and its sender may arrive as raw string ids, numeric
// ids, or embedded objects. All of them normalize to canonical string
// keys before any engine comparison sees them.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	aux := struct {
		*plain
		ID       json.RawMessage `json:"id"`
		ChatID   json.RawMessage `json:"chat_id"`
		Chat     json.RawMessage `json:"chat"`
		SenderID json.RawMessage `json:"sender_id"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.ID = identity.FromJSON(aux.ID)
	m.ChatID = identity.FromJSON(aux.ChatID)
	if m.ChatID == "" {
		m.ChatID = identity.FromJSON(aux.Chat)
	}
	m.SenderID = identity.FromJSON(aux.SenderID)
	if m.SenderID == "" && m.Sender != nil {
		m.SenderID = m.Sender.ID
	}
	return nil
}

// NewOptimisticID fabricates a synthetic id for a placeholder message.
func NewOptimisticID(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", optimisticPrefix, now.UnixMilli(), uuid.New().String()[:8])
}

// IsOptimisticID reports whether id was fabricated locally.
func IsOptimisticID(id string) bool {
	return strings.HasPrefix(id, optimisticPrefix)
}

type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ReactionGroup is aggregated reaction info for display.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"` // user IDs
}

// GroupReactions aggregates a message's reactions by emoji, preserving
// first-seen emoji order.
func GroupReactions(reactions []Reaction) []ReactionGroup {
	var groups []ReactionGroup
	index := make(map[string]int, len(reactions))
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			index[r.Emoji] = len(groups)
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
			i = len(groups) - 1
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, r.UserID)
	}
	return groups
}
