package sync

import (
	"sort"

	"github.com/chatsync/internal/model"
)

// Directory maintains the ordered set of chats visible to the local
// user: REST snapshots merged with push events, most-recent-first by
// OrderKey. Not goroutine-safe; the engine serializes all access.
type Directory struct {
	localUserID string
	chats       []*model.Chat
}

func NewDirectory(localUserID string) *Directory {
	return &Directory{localUserID: localUserID}
}

// annotate derives the local membership flags by comparing the local
// user id against the participant and former-participant sets.
func (d *Directory) annotate(c *model.Chat) {
	if c.HasParticipant(d.localUserID) {
		c.HasLeft = false
		c.IsFormerParticipant = false
		return
	}
	if c.WasParticipant(d.localUserID) {
		c.IsFormerParticipant = true
		return
	}
	c.HasLeft = true
}

// LoadSnapshot replaces the directory with a REST snapshot, annotating
// each entry before merge and restoring the ordering invariant.
func (d *Directory) LoadSnapshot(chats []model.Chat) {
	d.chats = make([]*model.Chat, 0, len(chats))
	for i := range chats {
		c := chats[i]
		d.annotate(&c)
		d.chats = append(d.chats, &c)
	}
	d.resort()
}

// Upsert merges a created/updated/restored chat by id and resorts.
// Returns the stored entry.
func (d *Directory) Upsert(chat model.Chat) *model.Chat {
	d.annotate(&chat)
	for i, c := range d.chats {
		if c.ID == chat.ID {
			// Keep the local unread counter across server updates.
			chat.UnreadCount = c.UnreadCount
			d.chats[i] = &chat
			d.resort()
			return d.chats[i]
		}
	}
	d.chats = append(d.chats, &chat)
	d.resort()
	return &chat
}

// Remove drops a chat by id (chat:deleted or explicit user delete).
func (d *Directory) Remove(chatID string) bool {
	for i, c := range d.chats {
		if c.ID == chatID {
			d.chats = append(d.chats[:i], d.chats[i+1:]...)
			return true
		}
	}
	return false
}

// MarkLeft flags a self-initiated departure. The chat stays listed:
// leaving gates sending, not reading.
func (d *Directory) MarkLeft(chatID string) *model.Chat {
	c := d.Get(chatID)
	if c != nil {
		c.HasLeft = true
	}
	return c
}

// MarkRemoved flags a server-initiated removal.
func (d *Directory) MarkRemoved(chatID string) *model.Chat {
	c := d.Get(chatID)
	if c != nil {
		c.IsFormerParticipant = true
	}
	return c
}

// ApplyPreview updates a chat's last-message snapshot with an incoming
// message, so a late-arriving duplicate cannot clobber a more recent
// preview or inflate the unread counter. countUnread increments the
// unread counter (caller decides: not the active chat, not own message),
// applied at most once per message id.
func (d *Directory) ApplyPreview(msg *model.Message, countUnread bool) *model.Chat {
	c := d.Get(msg.ChatID)
	if c == nil {
		return nil
	}
	// The message takes the preview when it is newer, or when it carries
	// a different id at the same instant (an authoritative echo swapping
	// out a placeholder snapshot). Redeliveries and late stragglers take
	// nothing — and the unread counter rides the same decision, so a
	// duplicate delivery can never count twice.
	stored := c.LastMessage
	applied := stored == nil ||
		msg.CreatedAt.After(c.LastMessageAt) ||
		(msg.ID != stored.ID && !msg.CreatedAt.Before(c.LastMessageAt))
	if !applied {
		return c
	}
	preview := *msg
	c.LastMessage = &preview
	c.LastMessageAt = msg.CreatedAt
	if countUnread {
		c.UnreadCount++
	}
	d.resort()
	return c
}

// ClearUnread zeroes a chat's unread counter.
func (d *Directory) ClearUnread(chatID string) {
	if c := d.Get(chatID); c != nil {
		c.UnreadCount = 0
	}
}

func (d *Directory) Get(chatID string) *model.Chat {
	for _, c := range d.chats {
		if c.ID == chatID {
			return c
		}
	}
	return nil
}

// Chats returns an ordered snapshot copy.
func (d *Directory) Chats() []model.Chat {
	out := make([]model.Chat, 0, len(d.chats))
	for _, c := range d.chats {
		out = append(out, *c)
	}
	return out
}

// IDs returns the visible chat ids, used to reconcile transport rooms.
func (d *Directory) IDs() []string {
	out := make([]string, 0, len(d.chats))
	for _, c := range d.chats {
		out = append(out, c.ID)
	}
	return out
}

// resort restores the directory invariant: descending by OrderKey,
// stable otherwise (ties need no secondary key).
func (d *Directory) resort() {
	sort.SliceStable(d.chats, func(i, j int) bool {
		return d.chats[i].OrderKey().After(d.chats[j].OrderKey())
	})
}
