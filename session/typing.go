package session

import (
	"sync"
	"time"

	"realty-messenger/service"
)

// TypingIdle is how long after the last keystroke stop_typing is sent.
const TypingIdle = 2 * time.Second

// Signaler sends an ephemeral signal for a conversation to the gateway.
type Signaler interface {
	Signal(event string, conversationID uint)
}

type SignalFunc func(event string, conversationID uint)

func (f SignalFunc) Signal(event string, conversationID uint) {
	f(event, conversationID)
}

type typingTimer struct {
	timer *time.Timer
	gen   uint64
}

// Typing debounces typing signals with one idle timer per conversation.
type Typing struct {
	mu     sync.Mutex
	out    Signaler
	idle   time.Duration
	gen    uint64
	timers map[uint]*typingTimer
}

func NewTyping(out Signaler, idle time.Duration) *Typing {
	if idle <= 0 {
		idle = TypingIdle
	}
	return &Typing{
		out:    out,
		idle:   idle,
		timers: make(map[uint]*typingTimer),
	}
}

// Keystroke sends typing and restarts the conversation's idle timer.
func (t *Typing) Keystroke(conversationID uint) {
	t.mu.Lock()
	if tt, ok := t.timers[conversationID]; ok {
		tt.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timers[conversationID] = &typingTimer{
		timer: time.AfterFunc(t.idle, func() { t.expire(conversationID, gen) }),
		gen:   gen,
	}
	t.mu.Unlock()

	t.out.Signal(service.EventTyping, conversationID)
}

func (t *Typing) expire(conversationID uint, gen uint64) {
	t.mu.Lock()
	tt, ok := t.timers[conversationID]
	if !ok || tt.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.timers, conversationID)
	t.mu.Unlock()

	t.out.Signal(service.EventStopTyping, conversationID)
}

// Stop cancels the idle timer and sends stop_typing right away.
func (t *Typing) Stop(conversationID uint) {
	t.mu.Lock()
	if tt, ok := t.timers[conversationID]; ok {
		tt.timer.Stop()
		delete(t.timers, conversationID)
	}
	t.mu.Unlock()

	t.out.Signal(service.EventStopTyping, conversationID)
}

// Active reports whether conversationID has a live idle timer.
func (t *Typing) Active(conversationID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[conversationID]
	return ok
}

// Pending is the number of live idle timers.
func (t *Typing) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Close cancels every timer without signalling.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tt := range t.timers {
		tt.timer.Stop()
		delete(t.timers, id)
	}
}
