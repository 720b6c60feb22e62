// Package api is the REST boundary to the chat server: chat listing,
// message history, chat lifecycle, participants, uploads and forwarding.
// Contracts only; the server's persistence is not this client's concern.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/chatsync/internal/model"
	"github.com/go-playground/validator/v10"
)

type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient builds a REST client. timeout <= 0 falls back to 10s.
func NewClient(baseURL, credential string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
		validate:   validator.New(),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		if err := c.validate.Struct(in); err != nil {
			return fmt.Errorf("api: %s %s: %w", method, path, err)
		}
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListChats fetches the full chat directory snapshot.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// History fetches the message history of one chat.
func (c *Client) History(ctx context.Context, chatID string) ([]model.Message, error) {
	var msgs []model.Message
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats/"+chatID+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

type CreateChatRequest struct {
	Kind           model.ChatKind `json:"kind" validate:"required,oneof=direct group"`
	Name           string         `json:"name,omitempty" validate:"required_if=Kind group"`
	Description    string         `json:"description,omitempty"`
	ParticipantIDs []string       `json:"participant_ids" validate:"required,min=1"`
}

func (c *Client) CreateChat(ctx context.Context, req CreateChatRequest) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodPost, "/api/chats", req, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

type UpdateChatRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
}

func (c *Client) UpdateChat(ctx context.Context, chatID string, req UpdateChatRequest) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodPatch, "/api/chats/"+chatID, req, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/chats/"+chatID, nil, nil)
}

type participantRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (c *Client) AddParticipant(ctx context.Context, chatID, userID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/chats/"+chatID+"/participants", participantRequest{UserID: userID}, nil)
}

func (c *Client) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/chats/"+chatID+"/participants/"+userID, nil, nil)
}

type ForwardRequest struct {
	MessageID string   `json:"message_id" validate:"required"`
	ChatIDs   []string `json:"chat_ids" validate:"required,min=1"`
}

// ForwardMessage copies a message into other chats. The copies come back
// through the normal message:new push path.
func (c *Client) ForwardMessage(ctx context.Context, req ForwardRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/api/messages/forward", req, nil)
}

// UploadAttachment streams one file to the storage collaborator and
// returns its descriptor.
func (c *Client) UploadAttachment(ctx context.Context, name string, size int64, r io.Reader) (*model.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api: upload %s: status %d", name, resp.StatusCode)
	}
	var att model.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return nil, err
	}
	if att.Size == 0 {
		att.Size = size
	}
	return &att, nil
}
