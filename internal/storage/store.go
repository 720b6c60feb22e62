package storage

import "context"

// DraftStore persists per-chat draft text and the session credential
// across client restarts.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type DraftStore interface {
	SetDraft(ctx context.Context, chatID, text string) error
	GetDraft(ctx context.Context, chatID string) (string, error)
	DeleteDraft(ctx context.Context, chatID string) error
	SetCredential(ctx context.Context, token string) error
	GetCredential(ctx context.Context) (string, error)
	Close() error
}
