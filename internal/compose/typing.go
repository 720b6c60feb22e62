package compose

import (
	"sync"
	"time"
)

// TypingNotifier debounces keystrokes into at most one start notification
// per burst and one stop notification after the idle period. Notify runs
// on a timer goroutine for the stop edge; callers must tolerate that.
type TypingNotifier struct {
	idle   time.Duration
	notify func(typing bool)

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

// NewTypingNotifier builds a debouncer. idle <= 0 defaults to 3s.
func NewTypingNotifier(idle time.Duration, notify func(typing bool)) *TypingNotifier {
	if idle <= 0 {
		idle = 3 * time.Second
	}
	return &TypingNotifier{idle: idle, notify: notify}
}

// Keystroke records typing activity: fires notify(true) on the first
// keystroke of a burst and re-arms the stop timer on every call.
func (t *TypingNotifier) Keystroke() {
	t.mu.Lock()
	wasActive := t.active
	t.active = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.expire)
	t.mu.Unlock()

	if !wasActive {
		t.notify(true)
	}
}

func (t *TypingNotifier) expire() {
	t.mu.Lock()
	wasActive := t.active
	t.active = false
	t.mu.Unlock()
	if wasActive {
		t.notify(false)
	}
}

// Stop flushes immediately: a pending burst ends now (message sent, chat
// switched, teardown).
func (t *TypingNotifier) Stop() {
	t.mu.Lock()
	wasActive := t.active
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	if wasActive {
		t.notify(false)
	}
}
