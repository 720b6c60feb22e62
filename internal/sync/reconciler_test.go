package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/chatsync/internal/model"
)

var streamBase = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func serverMsg(id, chatID, text string, at time.Time) model.Message {
	return model.Message{ID: id, ChatID: chatID, SenderID: "u2", Text: text, CreatedAt: at}
}

func optimisticMsg(chatID, text string, at time.Time) model.Message {
	return model.Message{
		ID:         model.NewOptimisticID(at),
		ChatID:     chatID,
		SenderID:   "u1",
		Text:       text,
		Optimistic: true,
		CreatedAt:  at,
	}
}

func assertOrdered(t *testing.T, msgs []model.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("messages out of order at %d: %v before %v", i, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}
}

func TestApplyNewIdempotent(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", nil)

	m := serverMsg("m1", "c1", "hello", streamBase)
	if !r.ApplyNew(m) {
		t.Fatalf("first delivery not applied")
	}
	if r.ApplyNew(m) {
		t.Fatalf("second delivery of same id was applied")
	}
	if got := len(r.Messages()); got != 1 {
		t.Fatalf("stored %d messages, want 1", got)
	}
}

func TestSeedHistoryPreemptsPushRace(t *testing.T) {
	r := NewReconciler(0)
	history := []model.Message{
		serverMsg("m1", "c1", "a", streamBase),
		serverMsg("m2", "c1", "b", streamBase.Add(time.Second)),
	}
	r.SeedHistory("c1", history)

	// The push for m2 raced the fetch and arrives afterwards.
	if r.ApplyNew(history[1]) {
		t.Fatalf("already-fetched message was applied again")
	}
	if got := len(r.Messages()); got != 2 {
		t.Fatalf("stored %d messages, want 2", got)
	}
}

func TestOptimisticReplacementInPlace(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", []model.Message{serverMsg("m0", "c1", "earlier", streamBase)})

	placeholder := optimisticMsg("c1", "hello", streamBase.Add(time.Minute))
	r.AppendOptimistic(placeholder)

	echo := serverMsg("m1", "c1", "hello", streamBase.Add(time.Minute+2*time.Second))
	if !r.ApplyNew(echo) {
		t.Fatalf("echo not applied")
	}

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("list length changed: got %d, want 2", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.ID != "m1" || last.Optimistic {
		t.Fatalf("placeholder not replaced by authoritative record: %+v", last)
	}
	for _, m := range msgs {
		if model.IsOptimisticID(m.ID) {
			t.Fatalf("optimistic placeholder survived replacement: %+v", m)
		}
	}
}

func TestDoubleSendPairsOffInOrder(t *testing.T) {
	r := NewReconciler(5 * time.Second)
	r.SeedHistory("c1", nil)

	// Same verbatim text sent twice in quick succession: two placeholders,
	// two echoes, each echo must consume exactly one placeholder, oldest
	// first.
	first := optimisticMsg("c1", "hi", streamBase)
	second := optimisticMsg("c1", "hi", streamBase.Add(time.Second))
	r.AppendOptimistic(first)
	r.AppendOptimistic(second)

	if !r.ApplyNew(serverMsg("m1", "c1", "hi", streamBase.Add(300*time.Millisecond))) {
		t.Fatalf("first echo not applied")
	}
	if !r.ApplyNew(serverMsg("m2", "c1", "hi", streamBase.Add(1300*time.Millisecond))) {
		t.Fatalf("second echo not applied")
	}

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want both sends paired off", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("echoes paired out of order: got ids %s, %s", msgs[0].ID, msgs[1].ID)
	}
	for _, m := range msgs {
		if m.Optimistic {
			t.Fatalf("placeholder survived pairing: %+v", m)
		}
	}
	assertOrdered(t, msgs)
}

func TestStaleEchoDoesNotMatch(t *testing.T) {
	r := NewReconciler(5 * time.Second)
	r.SeedHistory("c1", nil)

	placeholder := optimisticMsg("c1", "hello", streamBase)
	r.AppendOptimistic(placeholder)

	// Echo timestamps 6s after the placeholder: outside the window.
	echo := serverMsg("m1", "c1", "hello", streamBase.Add(6*time.Second))
	if !r.ApplyNew(echo) {
		t.Fatalf("echo not applied")
	}
	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want placeholder and echo both present", len(msgs))
	}

	// The next authoritative append cleans the now clearly stale
	// placeholder up.
	next := serverMsg("m2", "c1", "later", streamBase.Add(12*time.Second))
	r.ApplyNew(next)
	for _, m := range r.Messages() {
		if m.Optimistic {
			t.Fatalf("stale placeholder survived cleanup: %+v", m)
		}
	}
	if got := len(r.Messages()); got != 2 {
		t.Fatalf("got %d messages after cleanup, want 2", got)
	}
}

func TestOrderingInvariantAfterEveryMutation(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", []model.Message{
		serverMsg("m2", "c1", "b", streamBase.Add(2*time.Second)),
		serverMsg("m1", "c1", "a", streamBase),
	})
	assertOrdered(t, r.Messages())

	r.AppendOptimistic(optimisticMsg("c1", "x", streamBase.Add(time.Second)))
	assertOrdered(t, r.Messages())

	// Deliveries arrive out of timestamp order.
	r.ApplyNew(serverMsg("m5", "c1", "e", streamBase.Add(10*time.Second)))
	assertOrdered(t, r.Messages())
	r.ApplyNew(serverMsg("m3", "c1", "c", streamBase.Add(3*time.Second)))
	assertOrdered(t, r.Messages())

	r.ApplyDeleted("m1", nil)
	assertOrdered(t, r.Messages())
}

func TestSeedHistoryCarriesOptimistic(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", nil)
	r.AppendOptimistic(optimisticMsg("c1", "pending", streamBase.Add(time.Hour)))

	r.SeedHistory("c1", []model.Message{serverMsg("m1", "c1", "a", streamBase)})
	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want history plus carried placeholder", len(msgs))
	}
	if !msgs[1].Optimistic {
		t.Fatalf("placeholder not carried through reseed: %+v", msgs[1])
	}
}

func TestSeedRestoredSkipsHistory(t *testing.T) {
	r := NewReconciler(0)
	bundled := serverMsg("m9", "c2", "back again", streamBase)
	r.SeedRestored("c2", bundled)

	if got := len(r.Messages()); got != 1 {
		t.Fatalf("got %d messages, want only the bundled one", got)
	}
	if r.ApplyNew(bundled) {
		t.Fatalf("bundled message re-applied after restore seed")
	}
}

func TestApplyEditedReplacesWithoutReorder(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", []model.Message{
		serverMsg("m1", "c1", "a", streamBase),
		serverMsg("m2", "c1", "b", streamBase.Add(time.Second)),
	})

	edited := serverMsg("m1", "c1", "a (edited)", streamBase)
	edited.Edited = true
	if !r.ApplyEdited(edited) {
		t.Fatalf("edit not applied")
	}
	msgs := r.Messages()
	if msgs[0].ID != "m1" || msgs[0].Text != "a (edited)" || !msgs[0].Edited {
		t.Fatalf("edit did not replace in place: %+v", msgs[0])
	}
}

func TestApplyDeletedSoftDelete(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", []model.Message{
		serverMsg("m1", "c1", "secret", streamBase),
		serverMsg("m2", "c1", "b", streamBase.Add(time.Second)),
	})

	if !r.ApplyDeleted("m1", nil) {
		t.Fatalf("delete not applied")
	}
	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("soft delete removed the entity: %d messages", len(msgs))
	}
	if !msgs[0].Deleted || msgs[0].Text != "" {
		t.Fatalf("soft delete flags wrong: %+v", msgs[0])
	}
}

func TestRollbackOptimistic(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", []model.Message{serverMsg("m1", "c1", "a", streamBase)})
	for i := 0; i < 3; i++ {
		r.AppendOptimistic(optimisticMsg("c1", fmt.Sprintf("p%d", i), streamBase.Add(time.Duration(i)*time.Second)))
	}

	if removed := r.RollbackOptimistic(); removed != 3 {
		t.Fatalf("rolled back %d, want 3", removed)
	}
	if got := len(r.Messages()); got != 1 {
		t.Fatalf("got %d messages after rollback, want 1", got)
	}
}

func TestApplyNewIgnoresOtherChats(t *testing.T) {
	r := NewReconciler(0)
	r.SeedHistory("c1", nil)
	if r.ApplyNew(serverMsg("m1", "c2", "elsewhere", streamBase)) {
		t.Fatalf("message for inactive chat was applied")
	}
}
