package sync

import (
	"testing"
	"time"

	"github.com/chatsync/internal/model"
)

var dirBase = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func chatAt(id string, lastMessageAt time.Time) model.Chat {
	return model.Chat{
		ID:             id,
		Kind:           model.ChatKindGroup,
		ParticipantIDs: []string{"u1", "u2"},
		CreatedAt:      dirBase.Add(-time.Hour),
		LastMessageAt:  lastMessageAt,
	}
}

func directoryOrder(d *Directory) []string {
	var ids []string
	for _, c := range d.Chats() {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestDirectoryResortOnNewMessages(t *testing.T) {
	d := NewDirectory("u1")
	d.LoadSnapshot([]model.Chat{
		chatAt("A", dirBase.Add(1*time.Minute)),
		chatAt("B", dirBase.Add(2*time.Minute)),
	})

	if got := directoryOrder(d); got[0] != "B" || got[1] != "A" {
		t.Fatalf("initial order = %v, want [B A]", got)
	}

	d.ApplyPreview(&model.Message{ID: "m1", ChatID: "B", Text: "x", CreatedAt: dirBase.Add(3 * time.Minute)}, false)
	if got := directoryOrder(d); got[0] != "B" {
		t.Fatalf("order after message to B = %v, want B first", got)
	}

	d.ApplyPreview(&model.Message{ID: "m2", ChatID: "A", Text: "y", CreatedAt: dirBase.Add(4 * time.Minute)}, false)
	if got := directoryOrder(d); got[0] != "A" || got[1] != "B" {
		t.Fatalf("order after message to A = %v, want [A B]", got)
	}
}

func TestDirectoryOrderKeyFallsBackToCreatedAt(t *testing.T) {
	d := NewDirectory("u1")
	fresh := model.Chat{ID: "new", ParticipantIDs: []string{"u1"}, CreatedAt: dirBase.Add(10 * time.Minute)}
	d.LoadSnapshot([]model.Chat{chatAt("old", dirBase), fresh})

	if got := directoryOrder(d); got[0] != "new" {
		t.Fatalf("order = %v, want the newly created chat first", got)
	}
}

func TestPreviewNotClobberedByLateDuplicate(t *testing.T) {
	d := NewDirectory("u1")
	d.LoadSnapshot([]model.Chat{chatAt("A", time.Time{})})

	first := model.Message{ID: "m1", ChatID: "A", Text: "first", CreatedAt: dirBase}
	second := model.Message{ID: "m2", ChatID: "A", Text: "second", CreatedAt: dirBase.Add(time.Minute)}
	d.ApplyPreview(&first, false)
	d.ApplyPreview(&second, false)

	// Duplicate delivery of m1 arrives late: same id, not newer.
	stale := first
	d.ApplyPreview(&stale, false)

	c := d.Get("A")
	if c.LastMessage.ID != "m2" {
		t.Fatalf("preview clobbered by late duplicate: %+v", c.LastMessage)
	}
	if !c.LastMessageAt.Equal(second.CreatedAt) {
		t.Fatalf("preview timestamp = %v, want %v", c.LastMessageAt, second.CreatedAt)
	}

	// A different id replaces the preview even when it matches the
	// optimistic send's timestamp (placeholder swap).
	echo := model.Message{ID: "m3", ChatID: "A", Text: "second", CreatedAt: second.CreatedAt}
	d.ApplyPreview(&echo, false)
	if c.LastMessage.ID != "m3" {
		t.Fatalf("different-id echo did not replace preview: %+v", c.LastMessage)
	}
}

func TestAnnotateDerivesMembershipFlags(t *testing.T) {
	tests := []struct {
		name       string
		chat       model.Chat
		wantLeft   bool
		wantFormer bool
	}{
		{
			name: "active_participant",
			chat: model.Chat{ID: "c", ParticipantIDs: []string{"u1", "u2"}},
		},
		{
			name:       "former_participant",
			chat:       model.Chat{ID: "c", ParticipantIDs: []string{"u2"}, FormerParticipantIDs: []string{"u1"}},
			wantFormer: true,
		},
		{
			name:     "left",
			chat:     model.Chat{ID: "c", ParticipantIDs: []string{"u2"}},
			wantLeft: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDirectory("u1")
			d.LoadSnapshot([]model.Chat{tt.chat})
			c := d.Get("c")
			if c.HasLeft != tt.wantLeft || c.IsFormerParticipant != tt.wantFormer {
				t.Fatalf("flags = hasLeft:%v former:%v, want hasLeft:%v former:%v",
					c.HasLeft, c.IsFormerParticipant, tt.wantLeft, tt.wantFormer)
			}
		})
	}
}

func TestApplyPreviewCountsEachMessageOnce(t *testing.T) {
	d := NewDirectory("u1")
	d.LoadSnapshot([]model.Chat{chatAt("A", time.Time{})})

	m1 := model.Message{ID: "m1", ChatID: "A", SenderID: "u2", Text: "x", CreatedAt: dirBase}
	m2 := model.Message{ID: "m2", ChatID: "A", SenderID: "u2", Text: "y", CreatedAt: dirBase.Add(time.Minute)}

	d.ApplyPreview(&m1, true)
	d.ApplyPreview(&m1, true) // immediate redelivery
	if got := d.Get("A").UnreadCount; got != 1 {
		t.Fatalf("unread = %d after redelivery, want 1", got)
	}

	d.ApplyPreview(&m2, true)
	d.ApplyPreview(&m1, true) // straggler redelivery after a newer message
	if got := d.Get("A").UnreadCount; got != 2 {
		t.Fatalf("unread = %d after straggler, want 2", got)
	}
	if d.Get("A").LastMessage.ID != "m2" {
		t.Fatalf("straggler took the preview: %+v", d.Get("A").LastMessage)
	}
}

func TestUpsertKeepsUnreadCounter(t *testing.T) {
	d := NewDirectory("u1")
	d.LoadSnapshot([]model.Chat{chatAt("A", dirBase)})
	d.ApplyPreview(&model.Message{ID: "m1", ChatID: "A", SenderID: "u2", CreatedAt: dirBase.Add(time.Minute)}, true)

	updated := chatAt("A", dirBase.Add(time.Minute))
	updated.Name = "renamed"
	d.Upsert(updated)

	c := d.Get("A")
	if c.Name != "renamed" {
		t.Fatalf("update lost: %+v", c)
	}
	if c.UnreadCount != 1 {
		t.Fatalf("unread counter reset by upsert: %d", c.UnreadCount)
	}
}

func TestMarkLeftKeepsChatListed(t *testing.T) {
	d := NewDirectory("u1")
	d.LoadSnapshot([]model.Chat{chatAt("A", dirBase)})

	if c := d.MarkLeft("A"); c == nil || !c.HasLeft {
		t.Fatalf("MarkLeft: %+v", c)
	}
	if d.Get("A") == nil {
		t.Fatalf("leaving removed the chat from the directory")
	}

	if !d.Remove("A") {
		t.Fatalf("explicit remove failed")
	}
	if d.Get("A") != nil {
		t.Fatalf("chat still listed after explicit delete")
	}
}
