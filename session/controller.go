// Package session keeps a signed-in user's view of their conversations
// consistent with the gateway events and the REST API.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"realty-messenger/service"

	"go.uber.org/zap"
)

// UnreadSource returns the authoritative unread total.
type UnreadSource interface {
	UnreadCount(ctx context.Context) (int64, error)
}

// Controller tracks the focused conversation and the unread badge.
type Controller struct {
	mu      sync.Mutex
	api     UnreadSource
	focused uint
	unread  int64
	log     *zap.Logger
}

func NewController(api UnreadSource, log *zap.Logger) *Controller {
	return &Controller{api: api, log: log.Named("session")}
}

// Focus marks conversationID as the one on screen.
func (c *Controller) Focus(conversationID uint) {
	c.mu.Lock()
	c.focused = conversationID
	c.mu.Unlock()
}

// Unfocus clears the focus if conversationID still holds it.
func (c *Controller) Unfocus(conversationID uint) {
	c.mu.Lock()
	if c.focused == conversationID {
		c.focused = 0
	}
	c.mu.Unlock()
}

func (c *Controller) Focused() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

func (c *Controller) Unread() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Refresh replaces the local counter with the server's total. On failure the
// previous value is kept.
func (c *Controller) Refresh(ctx context.Context) error {
	n, err := c.api.UnreadCount(ctx)
	if err != nil {
		return fmt.Errorf("refreshing unread count: %w", err)
	}
	c.mu.Lock()
	c.unread = n
	c.mu.Unlock()
	return nil
}

func (c *Controller) OnNewMessage(p service.NewMessagePayload) {
	if p.Message != nil && p.Message.SenderID == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ConversationID == c.focused {
		return
	}
	c.unread++
}

// Handle applies one gateway event.
func (c *Controller) Handle(ctx context.Context, event string, raw json.RawMessage) error {
	switch event {
	case service.EventNewMessage:
		var p service.NewMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decoding %s: %w", event, err)
		}
		c.OnNewMessage(p)
	case service.EventMessagesRead, service.EventConversationDeleted:
		return c.Refresh(ctx)
	}
	return nil
}
