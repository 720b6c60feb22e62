package memory

import (
	"context"
	"testing"

	"github.com/chatsync/internal/storage"
)

var _ storage.DraftStore = (*Client)(nil)

func TestDraftLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New()

	if err := c.SetDraft(ctx, "c1", "unfinished"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := c.GetDraft(ctx, "c1"); got != "unfinished" {
		t.Fatalf("get = %q", got)
	}

	// Empty text clears instead of storing an empty draft.
	if err := c.SetDraft(ctx, "c1", ""); err != nil {
		t.Fatalf("set empty: %v", err)
	}
	if got, _ := c.GetDraft(ctx, "c1"); got != "" {
		t.Fatalf("draft survived empty set: %q", got)
	}

	if got, _ := c.GetDraft(ctx, "missing"); got != "" {
		t.Fatalf("missing draft = %q, want empty", got)
	}

	if err := c.SetDraft(ctx, "c2", "bye"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.DeleteDraft(ctx, "c2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := c.GetDraft(ctx, "c2"); got != "" {
		t.Fatalf("deleted draft = %q", got)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New()

	if got, _ := c.GetCredential(ctx); got != "" {
		t.Fatalf("fresh store credential = %q", got)
	}
	if err := c.SetCredential(ctx, "tok-9"); err != nil {
		t.Fatalf("set credential: %v", err)
	}
	if got, _ := c.GetCredential(ctx); got != "tok-9" {
		t.Fatalf("credential = %q", got)
	}
}
