package sync

import "github.com/chatsync/internal/model"

// Access is the local user's per-chat access state. Every state keeps
// read access to history; only Active may write.
type Access int

const (
	AccessActive Access = iota
	// AccessLeft: self-initiated departure.
	AccessLeft
	// AccessRemoved: server-initiated removal.
	AccessRemoved
)

// Membership tracks access per chat and gates the reconciler's write
// path. Not goroutine-safe; the engine serializes all access.
type Membership struct {
	localUserID string
	states      map[string]Access
}

func NewMembership(localUserID string) *Membership {
	return &Membership{localUserID: localUserID, states: make(map[string]Access)}
}

// Observe derives a chat's access state from its membership flags. An
// updated/restored chat that re-establishes participancy transitions
// left|removed back to active; history is never discarded.
func (m *Membership) Observe(chat *model.Chat) {
	switch {
	case chat.HasLeft:
		m.states[chat.ID] = AccessLeft
	case chat.IsFormerParticipant:
		m.states[chat.ID] = AccessRemoved
	default:
		m.states[chat.ID] = AccessActive
	}
}

func (m *Membership) MarkLeft(chatID string)    { m.states[chatID] = AccessLeft }
func (m *Membership) MarkRemoved(chatID string) { m.states[chatID] = AccessRemoved }
func (m *Membership) MarkActive(chatID string)  { m.states[chatID] = AccessActive }

// Forget drops state for a deleted chat.
func (m *Membership) Forget(chatID string) { delete(m.states, chatID) }

// Access returns the current state; unknown chats count as active so a
// freshly pushed chat is writable before the directory catches up.
func (m *Membership) Access(chatID string) Access {
	return m.states[chatID]
}

// CanSend gates send/edit/react/upload. The returned error carries the
// user-facing explanation.
func (m *Membership) CanSend(chatID string) error {
	switch m.states[chatID] {
	case AccessLeft:
		return ErrNotParticipant
	case AccessRemoved:
		return ErrRemoved
	default:
		return nil
	}
}
