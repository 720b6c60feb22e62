package model

import "time"

type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
)

type Chat struct {
	ID                   string            `json:"id"`
	Kind                 ChatKind          `json:"kind"`
	Name                 string            `json:"name,omitempty"`
	Description          string            `json:"description,omitempty"`
	CreatedBy            string            `json:"created_by"`
	ParticipantIDs       []string          `json:"participant_ids"`
	Participants         []UserPublic      `json:"participants,omitempty"`
	FormerParticipantIDs []string          `json:"former_participant_ids,omitempty"`
	Nicknames            map[string]string `json:"nicknames,omitempty"`
	LastMessage          *Message          `json:"last_message,omitempty"`
	LastMessageAt        time.Time         `json:"last_message_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`

	// Local membership flags, derived against the local user id on merge.
	HasLeft             bool `json:"has_left,omitempty"`
	IsFormerParticipant bool `json:"is_former_participant,omitempty"`

	UnreadCount int `json:"unread_count,omitempty"`
}

// OrderKey is the single directory ordering key: last message time,
// falling back to creation time for chats with no messages yet.
func (c *Chat) OrderKey() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// HasParticipant reports whether userID is a current participant.
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// WasParticipant reports whether userID was removed from the chat earlier.
func (c *Chat) WasParticipant(userID string) bool {
	for _, id := range c.FormerParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}
