package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"realty-messenger/model"
	"realty-messenger/service"
)

const (
	self        uint = 1
	counterpart uint = 2
	convID      uint = 7
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func message(id, sender uint, body string) model.Message {
	m := model.NewHumanMessage(convID, sender, body)
	m.ID = id
	m.CreatedAt = epoch.Add(time.Duration(id) * time.Second)
	return *m
}

// fakeAPI serves an ascending message list the way the REST API pages it.
type fakeAPI struct {
	mu      sync.Mutex
	msgs    []model.Message
	calls   []string
	sendErr error
	unread  int64
	readErr error
}

func newFakeAPI(n int) *fakeAPI {
	f := &fakeAPI{}
	for i := 1; i <= n; i++ {
		sender := counterpart
		if i%2 == 0 {
			sender = self
		}
		f.msgs = append(f.msgs, message(uint(i), sender, fmt.Sprintf("message %d", i)))
	}
	return f
}

func (f *fakeAPI) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAPI) Messages(_ context.Context, conversationID uint, limit, offset int) (*service.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("messages %d %d", limit, offset)

	start := min(offset, len(f.msgs))
	end := min(offset+limit, len(f.msgs))
	return &service.MessagePage{
		Messages: append([]model.Message(nil), f.msgs[start:end]...),
		Total:    int64(len(f.msgs)),
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, conversationID uint, body string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send %s", body)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	m := message(uint(len(f.msgs)+1000), self, body)
	f.msgs = append(f.msgs, m)
	return &m, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, conversationID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read %d", conversationID)
	return 1, f.readErr
}

func (f *fakeAPI) DeleteMessage(_ context.Context, conversationID, messageID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete %d", messageID)
	for i := range f.msgs {
		if f.msgs[i].ID == messageID {
			f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeAPI) UnreadCount(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unread")
	return f.unread, f.readErr
}

func (f *fakeAPI) takeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	return calls
}

type signal struct {
	event          string
	conversationID uint
}

type signals struct {
	mu   sync.Mutex
	list []signal
}

func (s *signals) Signal(event string, conversationID uint) {
	s.mu.Lock()
	s.list = append(s.list, signal{event, conversationID})
	s.mu.Unlock()
}

func (s *signals) snapshot() []signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signal(nil), s.list...)
}

func (s *signals) count(event string) int {
	n := 0
	for _, sig := range s.snapshot() {
		if sig.event == event {
			n++
		}
	}
	return n
}
