// Package sync is the client-resident reconciliation core: it keeps the
// chat directory and the active chat's message stream consistent with the
// server's push stream while absorbing optimistic local mutations.
package sync

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chatsync/internal/compose"
	"github.com/chatsync/internal/event"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/transport"
	"github.com/chatsync/internal/upload"
	"github.com/microcosm-cc/bluemonday"
)

// typingExpiry is how long a typing indicator survives without renewal.
const typingExpiry = 6 * time.Second

// Transport is the engine's view of the session (implemented by
// transport.Session).
type Transport interface {
	Emit(t event.Type, payload any) error
	Subscribe(fn func(event.Envelope)) transport.Subscription
	SyncRooms(chatIDs []string)
	Connected() bool
}

// API is the engine's REST collaborator boundary (implemented by
// api.Client).
type API interface {
	ListChats(ctx context.Context) ([]model.Chat, error)
	History(ctx context.Context, chatID string) ([]model.Message, error)
	DeleteChat(ctx context.Context, chatID string) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
}

// Config carries the per-session knobs.
type Config struct {
	LocalUserID string
	// MatchWindow for optimistic replacement; zero means DefaultMatchWindow.
	MatchWindow time.Duration
	// TypingIdle is the debounce quiet period for typing:stop.
	TypingIdle time.Duration
}

// Engine owns all per-session reconciliation state: the directory, the
// active stream, membership, pending attachments, typing and the
// compose draft. Every inbound event enters through HandleEvent, every
// user action through an exported method; one mutex serializes both, so
// logical races (optimistic vs authoritative writes) are resolved by the
// dedup and ordering rules, never by callers.
type Engine struct {
	cfg       Config
	transport Transport
	api       API
	store     storage.DraftStore
	uploads   *upload.Pipeline

	mu         sync.Mutex
	dir        *Directory
	rec        *Reconciler
	membership *Membership

	activeChat  string
	replyToID   string
	composeText string
	// typing tracks userID -> last renewal per chat; read side prunes.
	typing map[string]map[string]time.Time
	// restored stashes the bundled message of a chat:restored event so
	// the next SelectChat can skip the full history refetch.
	restored map[string]*model.Message
	fetchSeq uint64

	typingNotifier *compose.TypingNotifier
	sub            transport.Subscription
	onError        func(error)
	sanitize       *bluemonday.Policy
}

func NewEngine(cfg Config, tr Transport, api API, store storage.DraftStore, uploads *upload.Pipeline) *Engine {
	e := &Engine{
		cfg:        cfg,
		transport:  tr,
		api:        api,
		store:      store,
		uploads:    uploads,
		dir:        NewDirectory(cfg.LocalUserID),
		rec:        NewReconciler(cfg.MatchWindow),
		membership: NewMembership(cfg.LocalUserID),
		typing:     make(map[string]map[string]time.Time),
		restored:   make(map[string]*model.Message),
		sanitize:   bluemonday.StrictPolicy(),
	}
	e.typingNotifier = compose.NewTypingNotifier(cfg.TypingIdle, e.notifyTyping)
	return e
}

// SetErrorHandler installs the callback for send rejections and other
// locally recoverable errors surfaced asynchronously.
func (e *Engine) SetErrorHandler(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// Start loads the directory snapshot, reconciles transport rooms against
// it and acquires the push subscription. Release happens in Close.
func (e *Engine) Start(ctx context.Context) error {
	chats, err := e.api.ListChats(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.dir.LoadSnapshot(chats)
	for _, c := range e.dir.chats {
		e.membership.Observe(c)
	}
	ids := e.dir.IDs()
	e.mu.Unlock()

	e.transport.SyncRooms(ids)
	e.sub = e.transport.Subscribe(e.HandleEvent)
	return nil
}

// Close releases the subscription and flushes typing state. Room teardown
// belongs to the transport session.
func (e *Engine) Close() {
	if e.sub != nil {
		e.sub.Close()
	}
	e.typingNotifier.Stop()
	e.saveActiveDraft()
}

func (e *Engine) saveActiveDraft() {
	e.mu.Lock()
	chatID, text := e.activeChat, e.composeText
	e.mu.Unlock()
	if e.store == nil || chatID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.store.SetDraft(ctx, chatID, text); err != nil {
		logger.Errorf("save draft chat=%s: %v", chatID, err)
	}
}

// HandleEvent is the single synchronous entry point for every inbound
// push event. Events for one chat are processed in delivery order; the
// display order is recomputed from timestamps afterwards.
func (e *Engine) HandleEvent(env event.Envelope) {
	switch env.Type {
	case event.TypeMessageNew:
		var m model.Message
		if !decode(env, &m) {
			return
		}
		e.onServerMessage(m)
	case event.TypeMessageEdited:
		var m model.Message
		if !decode(env, &m) {
			return
		}
		e.onEdited(m)
	case event.TypeMessageDeleted:
		var p event.MessageDeleted
		if !decode(env, &p) {
			return
		}
		e.onDeleted(p)
	case event.TypeMessageReacted:
		var m model.Message
		if !decode(env, &m) {
			return
		}
		e.onReacted(m)
	case event.TypeMessagesRead:
		var p event.MessagesRead
		if !decode(env, &p) {
			return
		}
		e.onRead(p)
	case event.TypeUserTyping:
		var p event.TypingUser
		if !decode(env, &p) {
			return
		}
		e.onTyping(p, true)
	case event.TypeUserStoppedTyping:
		var p event.TypingUser
		if !decode(env, &p) {
			return
		}
		e.onTyping(p, false)
	case event.TypeMessageError:
		var p event.SendError
		if !decode(env, &p) {
			return
		}
		e.onSendError(p)
	case event.TypeChatCreated, event.TypeChatUpdated:
		var c model.Chat
		if !decode(env, &c) {
			return
		}
		e.onChatUpsert(c)
	case event.TypeChatDeleted:
		var p event.ChatRef
		if !decode(env, &p) {
			return
		}
		e.onChatDeleted(p.ChatID)
	case event.TypeChatRestored:
		var p event.ChatRestored
		if !decode(env, &p) {
			return
		}
		e.onChatRestored(p)
	case event.TypeChatLeft:
		var p event.ChatMembership
		if !decode(env, &p) {
			return
		}
		e.onMembershipEvent(p, AccessLeft)
	case event.TypeChatRemoved:
		var p event.ChatMembership
		if !decode(env, &p) {
			return
		}
		e.onMembershipEvent(p, AccessRemoved)
	default:
		logger.Infof("engine: ignoring event %s", env.Type)
	}
}

func decode[T any](env event.Envelope, out *T) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		logger.Errorf("engine: decode %s: %v", env.Type, err)
		return false
	}
	return true
}

func (e *Engine) onServerMessage(m model.Message) {
	m.Text = e.sanitize.Sanitize(m.Text)

	e.mu.Lock()
	defer e.mu.Unlock()

	countUnread := m.ChatID != e.activeChat && m.SenderID != e.cfg.LocalUserID
	e.dir.ApplyPreview(&m, countUnread)

	if m.ChatID == e.activeChat {
		e.rec.ApplyNew(m)
	}
	// A message ends the sender's typing burst even if the stop event
	// is lost.
	if users, ok := e.typing[m.ChatID]; ok {
		delete(users, m.SenderID)
	}
}

func (e *Engine) onEdited(m model.Message) {
	m.Text = e.sanitize.Sanitize(m.Text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if m.ChatID == e.activeChat {
		e.rec.ApplyEdited(m)
	}
	// Keep the directory preview in step when the edited message is the
	// latest one.
	if c := e.dir.Get(m.ChatID); c != nil && c.LastMessage != nil && c.LastMessage.ID == m.ID {
		preview := m
		c.LastMessage = &preview
	}
}

func (e *Engine) onReacted(m model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m.ChatID == e.activeChat {
		e.rec.ApplyReacted(m)
	}
}

func (e *Engine) onDeleted(p event.MessageDeleted) {
	e.mu.Lock()
	defer e.mu.Unlock()
	chatID := p.ChatID
	if p.Message != nil {
		chatID = p.Message.ChatID
	}
	if chatID == e.activeChat {
		e.rec.ApplyDeleted(p.MessageID, p.Message)
	}
	if e.replyToID == p.MessageID {
		e.replyToID = ""
	}
}

func (e *Engine) onRead(p event.MessagesRead) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.UserID == e.cfg.LocalUserID {
		e.dir.ClearUnread(p.ChatID)
		return
	}
	if p.ChatID == e.activeChat {
		e.rec.MarkRead(e.cfg.LocalUserID)
	}
}

func (e *Engine) onTyping(p event.TypingUser, typing bool) {
	if p.UserID == e.cfg.LocalUserID {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	users, ok := e.typing[p.ChatID]
	if !ok {
		if !typing {
			return
		}
		users = make(map[string]time.Time)
		e.typing[p.ChatID] = users
	}
	if typing {
		users[p.UserID] = time.Now()
	} else {
		delete(users, p.UserID)
	}
}

func (e *Engine) onSendError(p event.SendError) {
	e.mu.Lock()
	removed := e.rec.RollbackOptimistic()
	fn := e.onError
	e.mu.Unlock()

	logger.Errorf("engine: send rejected chat=%s reason=%q, rolled back %d optimistic", p.ChatID, p.Reason, removed)
	if fn != nil {
		fn(&SendRejectedError{ChatID: p.ChatID, Reason: p.Reason})
	}
}

// SendRejectedError surfaces a message:error push to the caller.
type SendRejectedError struct {
	ChatID string
	Reason string
}

func (err *SendRejectedError) Error() string {
	return "sync: send rejected: " + err.Reason
}

func (e *Engine) onChatUpsert(c model.Chat) {
	e.mu.Lock()
	stored := e.dir.Upsert(c)
	e.membership.Observe(stored)
	ids := e.dir.IDs()
	e.mu.Unlock()

	e.transport.SyncRooms(ids)
}

func (e *Engine) onChatDeleted(chatID string) {
	e.mu.Lock()
	e.dir.Remove(chatID)
	e.membership.Forget(chatID)
	delete(e.restored, chatID)
	if e.activeChat == chatID {
		e.clearActiveLocked()
	}
	ids := e.dir.IDs()
	e.mu.Unlock()

	e.transport.SyncRooms(ids)
}

// clearActiveLocked resets everything scoped to the active chat.
func (e *Engine) clearActiveLocked() {
	e.activeChat = ""
	e.replyToID = ""
	e.composeText = ""
	e.rec.Clear()
	if e.uploads != nil {
		e.uploads.Clear()
	}
}

func (e *Engine) onChatRestored(p event.ChatRestored) {
	e.mu.Lock()
	stored := e.dir.Upsert(p.Chat)
	e.membership.Observe(stored)
	if p.NewMessage != nil {
		msg := *p.NewMessage
		msg.Text = e.sanitize.Sanitize(msg.Text)
		e.dir.ApplyPreview(&msg, msg.SenderID != e.cfg.LocalUserID)
		if p.Chat.ID == e.activeChat {
			// Already active: append just the bundled message.
			e.rec.ApplyNew(msg)
		} else {
			// Stash it so the next SelectChat seeds the stream without a
			// redundant full history reload.
			e.restored[p.Chat.ID] = &msg
		}
	}
	ids := e.dir.IDs()
	e.mu.Unlock()

	e.transport.SyncRooms(ids)
}

func (e *Engine) onMembershipEvent(p event.ChatMembership, access Access) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.UserID == e.cfg.LocalUserID {
		if access == AccessLeft {
			e.dir.MarkLeft(p.ChatID)
			e.membership.MarkLeft(p.ChatID)
		} else {
			e.dir.MarkRemoved(p.ChatID)
			e.membership.MarkRemoved(p.ChatID)
		}
		return
	}

	// Someone else left or was removed: shrink the participant set but
	// keep their history.
	c := e.dir.Get(p.ChatID)
	if c == nil {
		return
	}
	for i, id := range c.ParticipantIDs {
		if id == p.UserID {
			c.ParticipantIDs = append(c.ParticipantIDs[:i], c.ParticipantIDs[i+1:]...)
			break
		}
	}
	for i, u := range c.Participants {
		if u.ID == p.UserID {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
			break
		}
	}
	c.FormerParticipantIDs = append(c.FormerParticipantIDs, p.UserID)
}

// SelectChat makes chatID the active chat: saves the outgoing draft,
// clears chat-scoped state, fetches history (unless a restored-chat
// bundle lets us skip it) and restores the new chat's draft. A history
// response that arrives after the user has moved on is discarded.
func (e *Engine) SelectChat(ctx context.Context, chatID string) error {
	e.mu.Lock()
	if e.dir.Get(chatID) == nil {
		e.mu.Unlock()
		return ErrChatNotFound
	}
	prevChat, prevDraft := e.activeChat, e.composeText
	e.replyToID = ""
	e.composeText = ""
	if e.uploads != nil {
		e.uploads.Clear()
	}
	e.activeChat = chatID
	e.dir.ClearUnread(chatID)
	e.fetchSeq++
	seq := e.fetchSeq

	if msg, ok := e.restored[chatID]; ok {
		delete(e.restored, chatID)
		e.rec.SeedRestored(chatID, *msg)
		e.mu.Unlock()
		e.typingNotifier.Stop()
		e.persistDraft(ctx, prevChat, prevDraft)
		e.restoreDraft(ctx, chatID)
		return nil
	}
	e.rec.SeedHistory(chatID, nil)
	e.mu.Unlock()

	e.typingNotifier.Stop()
	e.persistDraft(ctx, prevChat, prevDraft)

	history, err := e.api.History(ctx, chatID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.activeChat != chatID || e.fetchSeq != seq {
		// The user moved on while the fetch was in flight; silent
		// consistency repair, not an error.
		e.mu.Unlock()
		return nil
	}
	for i := range history {
		history[i].Text = e.sanitize.Sanitize(history[i].Text)
	}
	e.rec.SeedHistory(chatID, history)
	e.mu.Unlock()

	e.restoreDraft(ctx, chatID)
	return nil
}

func (e *Engine) persistDraft(ctx context.Context, chatID, text string) {
	if e.store == nil || chatID == "" {
		return
	}
	if err := e.store.SetDraft(ctx, chatID, text); err != nil {
		logger.Errorf("save draft chat=%s: %v", chatID, err)
	}
}

func (e *Engine) restoreDraft(ctx context.Context, chatID string) {
	if e.store == nil {
		return
	}
	draft, err := e.store.GetDraft(ctx, chatID)
	if err != nil {
		logger.Errorf("restore draft chat=%s: %v", chatID, err)
		return
	}
	e.mu.Lock()
	if e.activeChat == chatID {
		e.composeText = draft
	}
	e.mu.Unlock()
}

// Send performs the optimistic send: gate, placeholder, emit. The
// placeholder appears immediately; the server echo replaces it via
// onServerMessage.
func (e *Engine) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	e.mu.Lock()
	chatID := e.activeChat
	if chatID == "" {
		e.mu.Unlock()
		return ErrNoActiveChat
	}
	if err := e.membership.CanSend(chatID); err != nil {
		e.mu.Unlock()
		return err
	}
	if !e.transport.Connected() {
		e.mu.Unlock()
		return transport.ErrDisconnected
	}

	var attachments []model.Attachment
	if e.uploads != nil {
		var err error
		attachments, err = e.uploads.Ready()
		if err != nil {
			e.mu.Unlock()
			return err
		}
	}
	if text == "" && len(attachments) == 0 {
		e.mu.Unlock()
		return ErrEmptyMessage
	}

	chat := e.dir.Get(chatID)
	if chat == nil {
		e.mu.Unlock()
		return ErrChatNotFound
	}
	mentions := compose.ParseMentions(text, chat.Participants)
	replyTo := e.replyToID
	now := time.Now().UTC()
	placeholder := model.Message{
		ID:               model.NewOptimisticID(now),
		ChatID:           chatID,
		SenderID:         e.cfg.LocalUserID,
		Text:             e.sanitize.Sanitize(text),
		Attachments:      attachments,
		ReplyToID:        replyTo,
		MentionedUserIDs: mentions.UserIDs,
		MentionAll:       mentions.All,
		Status:           model.MessageStatusSent,
		Optimistic:       true,
		CreatedAt:        now,
	}
	e.rec.AppendOptimistic(placeholder)
	e.dir.ApplyPreview(&placeholder, false)
	if e.uploads != nil {
		e.uploads.Clear()
	}
	e.composeText = ""
	e.replyToID = ""
	e.mu.Unlock()

	e.typingNotifier.Stop()
	if e.store != nil {
		if err := e.store.DeleteDraft(ctx, chatID); err != nil {
			logger.Errorf("delete draft chat=%s: %v", chatID, err)
		}
	}

	err := e.transport.Emit(event.TypeMessageSend, event.SendMessage{
		ChatID:         chatID,
		Text:           text,
		ReplyTo:        replyTo,
		Attachments:    attachments,
		MentionedUsers: mentions.UserIDs,
		MentionAll:     mentions.All,
	})
	if err != nil {
		// The request never left the client; take the placeholder back.
		e.mu.Lock()
		e.rec.RemoveOptimistic(placeholder.ID)
		e.mu.Unlock()
		return err
	}
	return nil
}

// Edit applies the mutation locally and emits the request; the inbound
// message:edited echo is an idempotent re-application.
func (e *Engine) Edit(messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	e.mu.Lock()
	if e.activeChat == "" {
		e.mu.Unlock()
		return ErrNoActiveChat
	}
	if err := e.membership.CanSend(e.activeChat); err != nil {
		e.mu.Unlock()
		return err
	}
	if !e.transport.Connected() {
		e.mu.Unlock()
		return transport.ErrDisconnected
	}
	if m := e.rec.Get(messageID); m != nil {
		m.Text = e.sanitize.Sanitize(text)
		m.Edited = true
	}
	e.mu.Unlock()

	return e.transport.Emit(event.TypeMessageEdit, event.EditMessage{MessageID: messageID, Text: text})
}

// Delete soft-deletes locally and emits the request.
func (e *Engine) Delete(messageID string) error {
	e.mu.Lock()
	if e.activeChat == "" {
		e.mu.Unlock()
		return ErrNoActiveChat
	}
	if err := e.membership.CanSend(e.activeChat); err != nil {
		e.mu.Unlock()
		return err
	}
	if !e.transport.Connected() {
		e.mu.Unlock()
		return transport.ErrDisconnected
	}
	e.rec.ApplyDeleted(messageID, nil)
	if e.replyToID == messageID {
		e.replyToID = ""
	}
	e.mu.Unlock()

	return e.transport.Emit(event.TypeMessageDelete, event.DeleteMessage{MessageID: messageID})
}

// React appends the reaction locally and emits the request.
func (e *Engine) React(messageID, emoji string) error {
	e.mu.Lock()
	if e.activeChat == "" {
		e.mu.Unlock()
		return ErrNoActiveChat
	}
	if err := e.membership.CanSend(e.activeChat); err != nil {
		e.mu.Unlock()
		return err
	}
	if !e.transport.Connected() {
		e.mu.Unlock()
		return transport.ErrDisconnected
	}
	if m := e.rec.Get(messageID); m != nil {
		m.Reactions = append(m.Reactions, model.Reaction{
			UserID:    e.cfg.LocalUserID,
			Emoji:     emoji,
			CreatedAt: time.Now().UTC(),
		})
	}
	e.mu.Unlock()

	return e.transport.Emit(event.TypeMessageReact, event.ReactMessage{MessageID: messageID, Emoji: emoji})
}

// AttachFile feeds one selected file into the upload pipeline, gated on
// membership like every other write.
func (e *Engine) AttachFile(ctx context.Context, name, mimeType string, size int64, r io.Reader) (*model.PendingAttachment, error) {
	if e.uploads == nil {
		return nil, ErrUploadsDisabled
	}
	e.mu.Lock()
	chatID := e.activeChat
	if chatID == "" {
		e.mu.Unlock()
		return nil, ErrNoActiveChat
	}
	if err := e.membership.CanSend(chatID); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()
	return e.uploads.Add(ctx, name, mimeType, size, r), nil
}

// LeaveChat is the explicit self-initiated departure: REST removal plus
// the immediate local transition. History stays.
func (e *Engine) LeaveChat(ctx context.Context, chatID string) error {
	if err := e.api.RemoveParticipant(ctx, chatID, e.cfg.LocalUserID); err != nil {
		return err
	}
	e.mu.Lock()
	e.dir.MarkLeft(chatID)
	e.membership.MarkLeft(chatID)
	e.mu.Unlock()
	return nil
}

// DeleteChat is the explicit user delete: the one path that removes a
// chat from the directory.
func (e *Engine) DeleteChat(ctx context.Context, chatID string) error {
	if err := e.api.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	e.mu.Lock()
	e.dir.Remove(chatID)
	e.membership.Forget(chatID)
	delete(e.restored, chatID)
	if e.activeChat == chatID {
		e.clearActiveLocked()
	}
	ids := e.dir.IDs()
	e.mu.Unlock()

	e.transport.SyncRooms(ids)
	return nil
}

// SetComposeText tracks the draft text and feeds the typing debouncer.
func (e *Engine) SetComposeText(text string) {
	e.mu.Lock()
	e.composeText = text
	active := e.activeChat
	e.mu.Unlock()
	if active == "" {
		return
	}
	if text == "" {
		e.typingNotifier.Stop()
		return
	}
	e.typingNotifier.Keystroke()
}

func (e *Engine) notifyTyping(typing bool) {
	e.mu.Lock()
	chatID := e.activeChat
	e.mu.Unlock()
	if chatID == "" {
		return
	}
	t := event.TypeTypingStop
	if typing {
		t = event.TypeTypingStart
	}
	if err := e.transport.Emit(t, event.ChatRef{ChatID: chatID}); err != nil {
		logger.Errorf("engine: emit %s: %v", t, err)
	}
}

// SetReplyTo marks a message as the active reply target.
func (e *Engine) SetReplyTo(messageID string) {
	e.mu.Lock()
	e.replyToID = messageID
	e.mu.Unlock()
}

// --- Read-side snapshots ---

func (e *Engine) ActiveChat() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeChat
}

func (e *Engine) ComposeText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.composeText
}

func (e *Engine) ReplyTo() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replyToID
}

func (e *Engine) Chats() []model.Chat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir.Chats()
}

func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Messages()
}

func (e *Engine) Access(chatID string) Access {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.membership.Access(chatID)
}

// TypingUsers returns who is currently typing in a chat, pruning
// indicators that were never renewed.
func (e *Engine) TypingUsers(chatID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	users, ok := e.typing[chatID]
	if !ok {
		return nil
	}
	now := time.Now()
	var out []string
	for id, at := range users {
		if now.Sub(at) > typingExpiry {
			delete(users, id)
			continue
		}
		out = append(out, id)
	}
	return out
}
