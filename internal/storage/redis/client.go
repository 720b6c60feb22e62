package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Drafts outlive a restart but not a workweek; the credential TTL matches
// the longest session the auth service issues.
const (
	DraftTTL      = 7 * 24 * 3600
	CredentialTTL = 30 * 24 * 3600
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetDraft(ctx context.Context, chatID, text string) error {
	if text == "" {
		return c.DeleteDraft(ctx, chatID)
	}
	return c.cli.Set(ctx, "draft:"+chatID, text, DraftTTL*time.Second).Err()
}

func (c *Client) GetDraft(ctx context.Context, chatID string) (string, error) {
	val, err := c.cli.Get(ctx, "draft:"+chatID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteDraft(ctx context.Context, chatID string) error {
	return c.cli.Del(ctx, "draft:"+chatID).Err()
}

func (c *Client) SetCredential(ctx context.Context, token string) error {
	return c.cli.Set(ctx, "session:credential", token, CredentialTTL*time.Second).Err()
}

func (c *Client) GetCredential(ctx context.Context) (string, error) {
	val, err := c.cli.Get(ctx, "session:credential").Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}
