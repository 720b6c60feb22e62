// Package transport owns the one authenticated duplex channel to the chat
// server. It carries no business logic: inbound frames are fanned out to
// subscribers in delivery order, outbound requests are typed emits, and
// room membership is tracked locally so join/leave stay idempotent.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatsync/internal/event"
	"github.com/chatsync/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 65536
	defaultSendBufSize    = 256
)

var (
	// ErrDisconnected is returned by Emit while the channel is down.
	// Sends are rejected locally, never queued.
	ErrDisconnected = errors.New("transport: not connected")
	// ErrSendBufferFull is returned when the outbound buffer is saturated.
	ErrSendBufferFull = errors.New("transport: send buffer full")
)

// Subscription is the handle returned by Subscribe. Close releases it;
// safe to call more than once.
type Subscription interface {
	Close()
}

// Options configures Dial. Zero durations/sizes fall back to defaults.
type Options struct {
	URL            string
	Credential     string
	SendBufferSize int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

// Session is one authenticated websocket connection with read/write pumps.
// Lifecycle: Dial -> [readPump, writePump] -> Close.
type Session struct {
	conn *websocket.Conn
	send chan event.Envelope

	mu      sync.Mutex
	subs    map[int]func(event.Envelope)
	nextSub int
	joined  map[string]struct{}

	connected atomic.Bool
	done      chan struct{}
	once      sync.Once
	wg        sync.WaitGroup

	validate       *validator.Validate
	writeWait      time.Duration
	pongWait       time.Duration
	maxMessageSize int64
}

// Dial opens the channel, authenticating with a bearer header on the
// handshake, and starts both pumps.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	header := http.Header{}
	if opts.Credential != "" {
		header.Set("Authorization", "Bearer "+opts.Credential)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: status %d: %w", opts.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", opts.URL, err)
	}

	s := &Session{
		conn:           conn,
		send:           make(chan event.Envelope, bufSize(opts.SendBufferSize)),
		subs:           make(map[int]func(event.Envelope)),
		joined:         make(map[string]struct{}),
		done:           make(chan struct{}),
		validate:       validator.New(),
		writeWait:      durOr(opts.WriteTimeout, defaultWriteWait),
		pongWait:       durOr(opts.PongTimeout, defaultPongWait),
		maxMessageSize: opts.MaxMessageSize,
	}
	if s.maxMessageSize <= 0 {
		s.maxMessageSize = defaultMaxMessageSize
	}
	s.connected.Store(true)
	s.wg.Add(2)
	go s.writePump()
	go s.readPump()
	return s, nil
}

func bufSize(n int) int {
	if n <= 0 {
		return defaultSendBufSize
	}
	return n
}

func durOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Connected reports the current connectivity signal.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Subscribe registers fn for every inbound envelope. Callbacks run on the
// read pump goroutine, in delivery order.
func (s *Session) Subscribe(fn func(event.Envelope)) Subscription {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return &subscription{session: s, id: id}
}

type subscription struct {
	session *Session
	id      int
	once    sync.Once
}

func (sub *subscription) Close() {
	sub.once.Do(func() {
		sub.session.mu.Lock()
		delete(sub.session.subs, sub.id)
		sub.session.mu.Unlock()
	})
}

// Emit validates and enqueues one outbound request. Rejected locally when
// disconnected; never queued across reconnects.
func (s *Session) Emit(t event.Type, payload any) error {
	if !s.connected.Load() {
		return ErrDisconnected
	}
	if payload != nil {
		if err := s.validate.Struct(payload); err != nil {
			return fmt.Errorf("transport: emit %s: %w", t, err)
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: emit %s: %w", t, err)
	}
	env := event.Envelope{Type: t, Payload: raw}
	select {
	case s.send <- env:
		return nil
	case <-s.done:
		return ErrDisconnected
	default:
		return ErrSendBufferFull
	}
}

// JoinRoom subscribes to a chat's push stream. Idempotent: a second join
// for the same room emits nothing.
func (s *Session) JoinRoom(chatID string) error {
	s.mu.Lock()
	if _, ok := s.joined[chatID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.joined[chatID] = struct{}{}
	s.mu.Unlock()
	return s.Emit(event.TypeJoinChat, event.ChatRef{ChatID: chatID})
}

// LeaveRoom is the idempotent inverse of JoinRoom.
func (s *Session) LeaveRoom(chatID string) error {
	s.mu.Lock()
	if _, ok := s.joined[chatID]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.joined, chatID)
	s.mu.Unlock()
	return s.Emit(event.TypeLeaveChat, event.ChatRef{ChatID: chatID})
}

// SyncRooms reconciles the tracked room set against the currently visible
// chats: net-new ids are joined, ids that disappeared are left.
func (s *Session) SyncRooms(chatIDs []string) {
	want := make(map[string]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	var joins, leaves []string
	for id := range want {
		if _, ok := s.joined[id]; !ok {
			s.joined[id] = struct{}{}
			joins = append(joins, id)
		}
	}
	for id := range s.joined {
		if _, ok := want[id]; !ok {
			delete(s.joined, id)
			leaves = append(leaves, id)
		}
	}
	s.mu.Unlock()

	for _, id := range joins {
		if err := s.Emit(event.TypeJoinChat, event.ChatRef{ChatID: id}); err != nil {
			logger.Errorf("transport: join room %s: %v", id, err)
		}
	}
	for _, id := range leaves {
		if err := s.Emit(event.TypeLeaveChat, event.ChatRef{ChatID: id}); err != nil {
			logger.Errorf("transport: leave room %s: %v", id, err)
		}
	}
}

// Close leaves every tracked room, tears down both pumps and waits for
// them to exit. Safe to call multiple times.
func (s *Session) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		rooms := make([]string, 0, len(s.joined))
		for id := range s.joined {
			rooms = append(rooms, id)
		}
		s.joined = make(map[string]struct{})
		s.mu.Unlock()
		for _, id := range rooms {
			// Best effort; the server also drops rooms on disconnect.
			_ = s.Emit(event.TypeLeaveChat, event.ChatRef{ChatID: id})
		}

		s.connected.Store(false)
		// The write pump drains queued frames (the leave requests above
		// included), sends the close frame and closes the connection;
		// closing it here instead would race the drain.
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Session) dispatch(env event.Envelope) {
	s.mu.Lock()
	fns := make([]func(event.Envelope), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
}

// readPump decodes inbound frames and dispatches them in delivery order.
// Exits on read error (connection drop or Close).
func (s *Session) readPump() {
	defer s.wg.Done()
	defer func() {
		s.connected.Store(false)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(s.maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
		logger.Errorf("transport: set read deadline: %v", err)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("transport: read: %v", err)
			}
			return
		}
		var env event.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Errorf("transport: decode frame: %v", err)
			continue
		}
		s.dispatch(env)
	}
}

// drainSend flushes every frame still queued at shutdown, so teardown
// leave requests reach the server before the close frame does.
func (s *Session) drainSend() {
	for {
		select {
		case env := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

// writePump serializes outbound frames and keeps the connection alive
// with pings. Exits on write error or Close.
func (s *Session) writePump() {
	defer s.wg.Done()
	pingPeriod := (s.pongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.connected.Store(false)
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.drainSend()
			if err := s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(s.writeWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				logger.Errorf("transport: close frame: %v", err)
			}
			return
		case env := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
				logger.Errorf("transport: set write deadline: %v", err)
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
