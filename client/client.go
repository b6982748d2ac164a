// Package client is a typed HTTP client for the messenger REST API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"realty-messenger/model"
	"realty-messenger/service"

	"github.com/gofiber/fiber/v2"
)

const DefaultTimeout = 10 * time.Second

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("messenger api: %d %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

type envelope struct {
	Status  string          `json:"status"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

// New returns a client for the API served at baseURL (scheme and host, no
// version prefix) acting as the bearer of token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/v1",
		token:   token,
		timeout: DefaultTimeout,
	}
}

// WithToken returns a copy acting as another user.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) url(format string, args ...any) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

func (c *Client) do(ctx context.Context, a *fiber.Agent, out any) (int, error) {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(a)
		return 0, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	a.Set(fiber.HeaderAuthorization, "Bearer "+c.token).Timeout(timeout)

	var env envelope
	code, _, errs := a.Struct(&env)
	if code >= http.StatusBadRequest {
		msg := http.StatusText(code)
		if env.Message != nil {
			msg = *env.Message
		}
		return code, &Error{StatusCode: code, Message: msg}
	}
	if len(errs) > 0 {
		return code, fmt.Errorf("messenger api: %w", errors.Join(errs...))
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return code, fmt.Errorf("decoding response data: %w", err)
		}
	}
	return code, nil
}

// StartConversation reports created=true when the conversation did not exist yet.
func (c *Client) StartConversation(ctx context.Context, propertyID, agentID uint) (*model.Conversation, bool, error) {
	var data struct {
		Conversation model.Conversation `json:"conversation"`
	}
	a := fiber.Post(c.url("/conversations")).JSON(fiber.Map{
		"property_id": propertyID,
		"agent_id":    agentID,
	})
	code, err := c.do(ctx, a, &data)
	if err != nil {
		return nil, false, err
	}
	return &data.Conversation, code == http.StatusCreated, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]service.ConversationListItem, error) {
	var data struct {
		Conversations []service.ConversationListItem `json:"conversations"`
	}
	if _, err := c.do(ctx, fiber.Get(c.url("/conversations")), &data); err != nil {
		return nil, err
	}
	return data.Conversations, nil
}

func (c *Client) GetConversation(ctx context.Context, id uint) (*service.ConversationView, error) {
	var data struct {
		Conversation service.ConversationView `json:"conversation"`
	}
	if _, err := c.do(ctx, fiber.Get(c.url("/conversations/%d", id)), &data); err != nil {
		return nil, err
	}
	return &data.Conversation, nil
}

// Messages fetches one page; the server marks the counterpart's messages read.
func (c *Client) Messages(ctx context.Context, conversationID uint, limit, offset int) (*service.MessagePage, error) {
	page := new(service.MessagePage)
	a := fiber.Get(c.url("/conversations/%d/messages", conversationID)).
		QueryString(fmt.Sprintf("limit=%d&offset=%d", limit, offset))
	if _, err := c.do(ctx, a, page); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID uint, body string) (*model.Message, error) {
	var data struct {
		Message model.Message `json:"message"`
	}
	a := fiber.Post(c.url("/conversations/%d/messages", conversationID)).JSON(fiber.Map{"body": body})
	if _, err := c.do(ctx, a, &data); err != nil {
		return nil, err
	}
	return &data.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID uint) (int64, error) {
	var data struct {
		UpdatedCount int64 `json:"updatedCount"`
	}
	if _, err := c.do(ctx, fiber.Post(c.url("/conversations/%d/read", conversationID)), &data); err != nil {
		return 0, err
	}
	return data.UpdatedCount, nil
}

func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID uint) error {
	_, err := c.do(ctx, fiber.Delete(c.url("/conversations/%d/messages/%d", conversationID, messageID)), nil)
	return err
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var data struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	if _, err := c.do(ctx, fiber.Get(c.url("/messages/unread-count")), &data); err != nil {
		return 0, err
	}
	return data.UnreadCount, nil
}
