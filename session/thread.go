package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"realty-messenger/model"
	"realty-messenger/service"

	"go.uber.org/zap"
)

// PageSize is the number of messages loaded per request.
const PageSize = 50

var ErrEmptyDraft = errors.New("session: nothing to send")

// ThreadAPI is the REST surface a Thread uses.
type ThreadAPI interface {
	Messages(ctx context.Context, conversationID uint, limit, offset int) (*service.MessagePage, error)
	SendMessage(ctx context.Context, conversationID uint, body string) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID uint) (int64, error)
	DeleteMessage(ctx context.Context, conversationID, messageID uint) error
}

// Focuser is told which conversation is on screen. *Controller is one.
type Focuser interface {
	Focus(conversationID uint)
	Unfocus(conversationID uint)
}

// Thread is one open conversation: the loaded window of messages, the draft
// and who is typing. Messages stay sorted by creation time whatever order
// responses and gateway events arrive in.
type Thread struct {
	mu sync.Mutex

	api            ThreadAPI
	typing         *Typing
	focus          Focuser
	self           uint
	conversationID uint
	log            *zap.Logger

	messages   []model.Message
	total      int64
	draft      string
	typingUser uint
	deleted    bool
}

// NewThread opens conversationID for user self. typing may be nil.
func NewThread(api ThreadAPI, typing *Typing, self, conversationID uint, log *zap.Logger) *Thread {
	return &Thread{
		api:            api,
		typing:         typing,
		self:           self,
		conversationID: conversationID,
		log:            log.Named("thread").With(zap.Uint("conversation_id", conversationID)),
	}
}

func (t *Thread) ConversationID() uint { return t.conversationID }

// WithFocus makes Load focus the conversation and Close release it.
func (t *Thread) WithFocus(f Focuser) *Thread {
	t.focus = f
	return t
}

// Load focuses the thread and fetches the newest page. Pages are ascending,
// so when the thread is longer than one page a second request starts at
// total-PageSize.
func (t *Thread) Load(ctx context.Context) error {
	if t.focus != nil {
		t.focus.Focus(t.conversationID)
	}

	page, err := t.api.Messages(ctx, t.conversationID, PageSize, 0)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	if page.Total > PageSize {
		page, err = t.api.Messages(ctx, t.conversationID, PageSize, NewestOffset(page.Total))
		if err != nil {
			return fmt.Errorf("loading newest messages: %w", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = t.messages[:0]
	for _, m := range page.Messages {
		t.merge(m)
	}
	t.total = page.Total
	return nil
}

// NewestOffset is the offset of the last page of a thread of total messages.
func NewestOffset(total int64) int {
	return int(max(total-PageSize, 0))
}

// EarlierWindow returns the limit and offset of the batch just before the
// loaded messages, or limit 0 when everything is loaded.
func EarlierWindow(total int64, loaded int) (limit, offset int) {
	remaining := int(total) - loaded
	if remaining <= 0 {
		return 0, 0
	}
	limit = min(PageSize, remaining)
	return limit, max(remaining-limit, 0)
}

func (t *Thread) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.messages)) < t.total
}

func (t *Thread) LoadEarlier(ctx context.Context) error {
	t.mu.Lock()
	limit, offset := EarlierWindow(t.total, len(t.messages))
	t.mu.Unlock()
	if limit == 0 {
		return nil
	}

	page, err := t.api.Messages(ctx, t.conversationID, limit, offset)
	if err != nil {
		return fmt.Errorf("loading earlier messages: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range page.Messages {
		t.merge(m)
	}
	t.total = page.Total
	return nil
}

// merge inserts m in (createdAt, id) order, replacing a message with the same
// id. It reports whether m was new. Callers hold mu.
func (t *Thread) merge(m model.Message) bool {
	for i := range t.messages {
		if t.messages[i].ID == m.ID {
			t.messages[i] = m
			return false
		}
	}

	i := sort.Search(len(t.messages), func(i int) bool {
		x := t.messages[i]
		if x.CreatedAt.Equal(m.CreatedAt) {
			return x.ID > m.ID
		}
		return x.CreatedAt.After(m.CreatedAt)
	})
	t.messages = append(t.messages, model.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = m
	return true
}

// remove reports whether a message was dropped. Callers hold mu.
func (t *Thread) remove(id uint) bool {
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Thread) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Message(nil), t.messages...)
}

func (t *Thread) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Thread) Draft() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draft
}

// SetDraft updates the composer text and signals typing. Text over the
// message limit is refused.
func (t *Thread) SetDraft(text string) bool {
	if utf8.RuneCountInString(text) > service.MaxBodyLength {
		return false
	}
	t.mu.Lock()
	t.draft = text
	t.mu.Unlock()

	if t.typing != nil {
		t.typing.Keystroke(t.conversationID)
	}
	return true
}

// Send posts the draft. The draft is cleared while the request is in flight
// and restored if it fails.
func (t *Thread) Send(ctx context.Context) (*model.Message, error) {
	t.mu.Lock()
	body := strings.TrimSpace(t.draft)
	if body == "" {
		t.mu.Unlock()
		return nil, ErrEmptyDraft
	}
	t.draft = ""
	t.mu.Unlock()

	if t.typing != nil {
		t.typing.Stop(t.conversationID)
	}

	msg, err := t.api.SendMessage(ctx, t.conversationID, body)
	if err != nil {
		t.mu.Lock()
		if t.draft == "" {
			t.draft = body
		}
		t.mu.Unlock()
		return nil, err
	}

	t.mu.Lock()
	if t.merge(*msg) {
		t.total++
	}
	t.mu.Unlock()
	return msg, nil
}

func (t *Thread) Delete(ctx context.Context, messageID uint) error {
	if err := t.api.DeleteMessage(ctx, t.conversationID, messageID); err != nil {
		return err
	}
	t.mu.Lock()
	if t.remove(messageID) {
		t.total--
	}
	t.mu.Unlock()
	return nil
}

// Close releases the focus and ends a typing indicator still showing for
// this conversation.
func (t *Thread) Close() {
	if t.focus != nil {
		t.focus.Unfocus(t.conversationID)
	}
	if t.typing != nil && t.typing.Active(t.conversationID) {
		t.typing.Stop(t.conversationID)
	}
}

// TypingUser is the counterpart currently typing, or 0.
func (t *Thread) TypingUser() uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typingUser
}

// Deleted reports whether the conversation was removed server side.
func (t *Thread) Deleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleted
}

// OnNewMessage appends a message pushed for this thread and marks it read,
// since the thread is on screen.
func (t *Thread) OnNewMessage(ctx context.Context, p service.NewMessagePayload) error {
	if p.ConversationID != t.conversationID || p.Message == nil {
		return nil
	}

	t.mu.Lock()
	if t.merge(*p.Message) {
		t.total++
	}
	t.mu.Unlock()

	if p.Message.SentBy(t.self) {
		return nil
	}
	if _, err := t.api.MarkRead(ctx, t.conversationID); err != nil {
		return fmt.Errorf("marking read: %w", err)
	}
	return nil
}

// OnMessagesRead flags every message this user sent as read.
func (t *Thread) OnMessagesRead(p service.MessagesReadPayload) {
	if p.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].SentBy(t.self) {
			t.messages[i].Read = true
		}
	}
}

func (t *Thread) OnMessageDeleted(p service.MessageDeletedPayload) {
	if p.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remove(p.MessageID) {
		t.total--
	}
}

func (t *Thread) OnTyping(event string, p service.TypingPayload) {
	if p.ConversationID != t.conversationID || p.UserID == t.self {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch event {
	case service.EventTyping:
		t.typingUser = p.UserID
	case service.EventStopTyping:
		t.typingUser = 0
	}
}

func (t *Thread) OnConversationDeleted(p service.ConversationDeletedPayload) {
	if p.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	t.deleted = true
	t.mu.Unlock()
	t.log.Info("conversation deleted")
}

// Handle applies one gateway event.
func (t *Thread) Handle(ctx context.Context, event string, raw json.RawMessage) error {
	decode := func(v any) error {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("decoding %s: %w", event, err)
		}
		return nil
	}

	switch event {
	case service.EventNewMessage:
		var p service.NewMessagePayload
		if err := decode(&p); err != nil {
			return err
		}
		return t.OnNewMessage(ctx, p)
	case service.EventMessagesRead:
		var p service.MessagesReadPayload
		if err := decode(&p); err != nil {
			return err
		}
		t.OnMessagesRead(p)
	case service.EventMessageDeleted:
		var p service.MessageDeletedPayload
		if err := decode(&p); err != nil {
			return err
		}
		t.OnMessageDeleted(p)
	case service.EventConversationDeleted:
		var p service.ConversationDeletedPayload
		if err := decode(&p); err != nil {
			return err
		}
		t.OnConversationDeleted(p)
	case service.EventTyping, service.EventStopTyping:
		var p service.TypingPayload
		if err := decode(&p); err != nil {
			return err
		}
		t.OnTyping(event, p)
	}
	return nil
}
