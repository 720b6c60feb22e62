// Package summary is a one-shot bridge to the external AI summarization
// service. No state survives a call. With an empty base URL the client is
// a no-op that reports the feature as disabled.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chatsync/internal/model"
)

// ErrDisabled is returned when no summarization service is configured.
var ErrDisabled = errors.New("summary: service not configured")

type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client
}

// NewClient builds the bridge. An empty baseURL disables it.
func NewClient(baseURL, credential string, timeout time.Duration) *Client {
	if baseURL == "" {
		return &Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type summarizeRequest struct {
	ChatID       string `json:"chat_id"`
	MessageLimit int    `json:"message_limit,omitempty"`
}

// Summarize requests a summary of a chat's recent messages.
func (c *Client) Summarize(ctx context.Context, chatID string, messageLimit int) (*model.ChatSummary, error) {
	if c.baseURL == "" {
		return nil, ErrDisabled
	}
	body, err := json.Marshal(summarizeRequest{ChatID: chatID, MessageLimit: messageLimit})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/summarize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary: summarize chat %s: status %d", chatID, resp.StatusCode)
	}
	var out model.ChatSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
