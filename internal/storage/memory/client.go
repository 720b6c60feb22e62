package memory

import (
	"context"
	"sync"
	"time"
)

const draftTTL = 7 * 24 * time.Hour

type item struct {
	val string
	exp time.Time
}

type Client struct {
	mu         sync.RWMutex
	drafts     map[string]item
	credential string
}

func New() *Client {
	return &Client{drafts: make(map[string]item)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetDraft(ctx context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text == "" {
		delete(c.drafts, chatID)
		return nil
	}
	c.drafts[chatID] = item{val: text, exp: time.Now().Add(draftTTL)}
	return nil
}

func (c *Client) GetDraft(ctx context.Context, chatID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.drafts[chatID]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteDraft(ctx context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.drafts, chatID)
	return nil
}

func (c *Client) SetCredential(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = token
	return nil
}

func (c *Client) GetCredential(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential, nil
}
