package sync

import (
	"sort"
	"time"

	"github.com/chatsync/internal/model"
)

// DefaultMatchWindow bounds optimistic-placeholder matching. A tunable
// heuristic, not a correctness boundary.
const DefaultMatchWindow = 5 * time.Second

// Reconciler maintains the ordered, deduplicated message list of the
// currently active chat. It merges optimistic local insertions with
// server-confirmed events: matching placeholders are replaced in place,
// duplicates are dropped via the processed-event set, and display order
// is always recomputed from timestamps, never from delivery order.
// Not goroutine-safe; the engine serializes all access.
type Reconciler struct {
	matchWindow time.Duration

	chatID    string
	messages  []model.Message
	processed map[string]struct{}
}

func NewReconciler(matchWindow time.Duration) *Reconciler {
	if matchWindow <= 0 {
		matchWindow = DefaultMatchWindow
	}
	return &Reconciler{
		matchWindow: matchWindow,
		processed:   make(map[string]struct{}),
	}
}

// ActiveChat returns the chat id the list currently belongs to.
func (r *Reconciler) ActiveChat() string { return r.chatID }

// SeedHistory installs a freshly fetched history for chatID. The
// processed set is rebuilt from the fetched ids up front, pre-empting the
// race where a push for one of these messages arrives during the fetch.
// Optimistic placeholders already present for the same chat are carried
// over and re-sorted into place.
func (r *Reconciler) SeedHistory(chatID string, history []model.Message) {
	var carry []model.Message
	if r.chatID == chatID {
		for _, m := range r.messages {
			if m.Optimistic {
				carry = append(carry, m)
			}
		}
	}

	r.chatID = chatID
	r.processed = make(map[string]struct{}, len(history))
	r.messages = make([]model.Message, 0, len(history)+len(carry))
	for _, m := range history {
		r.processed[m.ID] = struct{}{}
		r.messages = append(r.messages, m)
	}
	r.messages = append(r.messages, carry...)
	r.sortByTime()
}

// SeedRestored installs the single bundled message of a just-restored
// chat instead of refetching full history.
func (r *Reconciler) SeedRestored(chatID string, msg model.Message) {
	r.chatID = chatID
	r.processed = map[string]struct{}{msg.ID: {}}
	r.messages = []model.Message{msg}
}

// Clear abandons the current list (active chat deleted or deselected).
func (r *Reconciler) Clear() {
	r.chatID = ""
	r.messages = nil
	r.processed = make(map[string]struct{})
}

// AppendOptimistic inserts a locally fabricated placeholder without
// waiting on the network.
func (r *Reconciler) AppendOptimistic(m model.Message) {
	if m.ChatID != r.chatID {
		return
	}
	r.messages = append(r.messages, m)
	r.sortByTime()
}

// ApplyNew applies a server-confirmed message:new. Returns false when the
// event was discarded as a duplicate or belongs to a different chat.
func (r *Reconciler) ApplyNew(m model.Message) bool {
	if m.ChatID != r.chatID {
		return false
	}
	if _, dup := r.processed[m.ID]; dup {
		return false
	}
	// Mark processed before any mutation: two deliveries of the same id
	// in quick succession must collapse to one stored entity.
	r.processed[m.ID] = struct{}{}

	if i := r.matchOptimistic(m); i >= 0 {
		// Replace in place: keeps list position, avoids visible reflow.
		r.messages[i] = m
		r.sortByTime()
		return true
	}

	r.dropStaleOptimistic(m.CreatedAt)
	r.messages = append(r.messages, m)
	r.sortByTime()
	return true
}

// matchOptimistic finds a placeholder with identical text whose timestamp
// is within the match window of the incoming message.
func (r *Reconciler) matchOptimistic(m model.Message) int {
	for i := range r.messages {
		o := &r.messages[i]
		if !o.Optimistic || o.Text != m.Text {
			continue
		}
		delta := m.CreatedAt.Sub(o.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= r.matchWindow {
			return i
		}
	}
	return -1
}

// dropStaleOptimistic removes placeholders that have clearly missed their
// echo. The cutoff is twice the match window: laxer than matching so a
// genuinely late echo is not raced out, tight enough that abandoned
// placeholders disappear on the next authoritative append.
func (r *Reconciler) dropStaleOptimistic(now time.Time) {
	cutoff := 2 * r.matchWindow
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.Optimistic && now.Sub(m.CreatedAt) > cutoff {
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
}

// ApplyEdited replaces a message by id in place. Edits do not reorder.
func (r *Reconciler) ApplyEdited(m model.Message) bool {
	return r.replaceByID(m)
}

// ApplyReacted replaces a message by id in place. Reactions do not
// reorder.
func (r *Reconciler) ApplyReacted(m model.Message) bool {
	return r.replaceByID(m)
}

func (r *Reconciler) replaceByID(m model.Message) bool {
	for i := range r.messages {
		if r.messages[i].ID == m.ID {
			m.ChatID = r.messages[i].ChatID
			r.messages[i] = m
			return true
		}
	}
	return false
}

// ApplyDeleted handles message:deleted. With a full updated message the
// entity is replaced by id; otherwise the soft-delete flag is flipped
// locally and the text blanked. The entity is retained for ordering.
func (r *Reconciler) ApplyDeleted(messageID string, full *model.Message) bool {
	if full != nil {
		return r.replaceByID(*full)
	}
	for i := range r.messages {
		if r.messages[i].ID == messageID {
			r.messages[i].Deleted = true
			r.messages[i].Text = ""
			return true
		}
	}
	return false
}

// MarkRead flips own sent messages to read after another participant's
// read receipt.
func (r *Reconciler) MarkRead(localUserID string) {
	for i := range r.messages {
		if r.messages[i].SenderID == localUserID && !r.messages[i].Optimistic {
			r.messages[i].Status = model.MessageStatusRead
		}
	}
}

// RollbackOptimistic removes every placeholder for the active chat after
// a send rejection. No automatic retry; resend is an explicit user action.
func (r *Reconciler) RollbackOptimistic() int {
	kept := r.messages[:0]
	removed := 0
	for _, m := range r.messages {
		if m.Optimistic {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return removed
}

// RemoveOptimistic drops a single placeholder by synthetic id (emit
// failed before the request left the client).
func (r *Reconciler) RemoveOptimistic(id string) {
	for i := range r.messages {
		if r.messages[i].ID == id && r.messages[i].Optimistic {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return
		}
	}
}

// Messages returns an ordered snapshot copy of the active stream.
func (r *Reconciler) Messages() []model.Message {
	out := make([]model.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Get returns the stored message with the given id, if present.
func (r *Reconciler) Get(id string) *model.Message {
	for i := range r.messages {
		if r.messages[i].ID == id {
			return &r.messages[i]
		}
	}
	return nil
}

func (r *Reconciler) sortByTime() {
	sort.SliceStable(r.messages, func(i, j int) bool {
		return r.messages[i].CreatedAt.Before(r.messages[j].CreatedAt)
	})
}
