package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"realty-messenger/controller"
	"realty-messenger/database"
	"realty-messenger/model"
	"realty-messenger/ratelimit"
	"realty-messenger/service"
	"realty-messenger/store"
	"realty-messenger/utils"

	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "test-access-key"

const (
	buyerID    uint = 1
	agentID    uint = 2
	strangerID uint = 3
	propertyID uint = 10
)

type envelope struct {
	Status  string          `json:"status"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	t        *testing.T
	app      *fiber.App
	enforcer *casbin.SyncedEnforcer
	events   *eventLog
}

type eventLog struct {
	events []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.OpenMemory()
	require.NoError(t, err)
	require.NoError(t, db.Create(&[]model.User{
		{ID: buyerID, Name: "Bea", Role: "buyer"},
		{ID: agentID, Name: "Al", Role: "agent"},
		{ID: strangerID, Name: "Sam", Role: "buyer"},
	}).Error)
	require.NoError(t, db.Create(&model.Property{ID: propertyID, AgentID: agentID, Location: "Karen", Type: "Villa", Purpose: "Sale"}).Error)

	enforcer, err := database.Casbin(db)
	require.NoError(t, err)

	log := &eventLog{}
	notifier := service.NotifierFunc(func(_ context.Context, userID uint, event string, _ any) {
		log.events = append(log.events, fmt.Sprintf("%d:%s", userID, event))
	})

	svc := service.NewMessenger(store.NewGormStore(db), notifier, nil, zap.NewNop())

	app := App("realty-messenger-test")
	Rest(app, RestDeps{
		Messenger: controller.NewMessenger(svc),
		JWTKey:    testKey,
		Enforcer:  enforcer,
		Limiter:   ratelimit.NewMemory(20, 10*time.Second),
		Log:       zap.NewNop(),
	})

	return &harness{t: t, app: app, enforcer: enforcer, events: log}
}

func token(t *testing.T, id uint, role string, otp bool) string {
	t.Helper()
	tok, err := utils.GenerateAccessToken(testKey, id, role, otp, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(method, path, tok string, body any) (int, envelope) {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type conversationData struct {
	Conversation struct {
		ID uint `json:"id"`
	} `json:"conversation"`
}

func (h *harness) startConversation(tok string) (int, uint) {
	h.t.Helper()
	status, env := h.do(http.MethodPost, "/v1/conversations", tok, map[string]uint{
		"property_id": propertyID,
		"agent_id":    agentID,
	})
	if status >= 300 {
		return status, 0
	}
	return status, decode[conversationData](h.t, env.Data).Conversation.ID
}

func TestRest_ConversationFlow(t *testing.T) {
	h := newHarness(t)
	buyer := token(t, buyerID, "buyer", false)
	agent := token(t, agentID, "agent", false)

	status, convID := h.startConversation(buyer)
	require.Equal(t, http.StatusCreated, status)

	status, again := h.startConversation(buyer)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, convID, again)

	status, env := h.do(http.MethodPost, fmt.Sprintf("/v1/conversations/%d/messages", convID), buyer,
		map[string]string{"body": "  Hi, is this available?  "})
	require.Equal(t, http.StatusCreated, status)
	sent := decode[struct {
		Message model.Message `json:"message"`
	}](t, env.Data).Message
	assert.Equal(t, "Hi, is this available?", sent.Body)
	require.NotNil(t, sent.Sender)
	assert.Equal(t, "Bea", sent.Sender.Name)
	assert.Equal(t, []string{"2:new_message"}, h.events.events)

	status, env = h.do(http.MethodGet, "/v1/messages/unread-count", agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"unreadCount":1}`, string(env.Data))

	status, env = h.do(http.MethodGet, "/v1/conversations", agent, nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[struct {
		Conversations []struct {
			ID          uint `json:"id"`
			UnreadCount int  `json:"unreadCount"`
			OtherUser   struct {
				Name string `json:"name"`
			} `json:"other_user"`
		} `json:"conversations"`
	}](t, env.Data).Conversations
	require.Len(t, list, 1)
	assert.Equal(t, convID, list[0].ID)
	assert.Equal(t, 1, list[0].UnreadCount)
	assert.Equal(t, "Bea", list[0].OtherUser.Name)

	status, env = h.do(http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages?limit=500", convID), agent, nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[service.MessagePage](t, env.Data)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, service.MaxPageSize, page.Limit)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].Read)
	assert.Equal(t, []string{"2:new_message", "1:messages_read"}, h.events.events)

	status, env = h.do(http.MethodGet, "/v1/messages/unread-count", agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"unreadCount":0}`, string(env.Data))

	status, env = h.do(http.MethodPost, fmt.Sprintf("/v1/conversations/%d/read", convID), agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updatedCount":0}`, string(env.Data))

	status, _ = h.do(http.MethodDelete, fmt.Sprintf("/v1/conversations/%d/messages/%d", convID, sent.ID), agent, nil)
	assert.Equal(t, http.StatusForbidden, status, "only the sender deletes")

	status, _ = h.do(http.MethodDelete, fmt.Sprintf("/v1/conversations/%d/messages/%d", convID, sent.ID), buyer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2:message_deleted", h.events.events[len(h.events.events)-1])

	status, env = h.do(http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages", convID), buyer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[service.MessagePage](t, env.Data).Messages)

	status, env = h.do(http.MethodGet, fmt.Sprintf("/v1/conversations/%d", convID), agent, nil)
	require.Equal(t, http.StatusOK, status)
	view := decode[struct {
		Conversation service.ConversationView `json:"conversation"`
	}](t, env.Data).Conversation
	require.NotNil(t, view.Property)
	assert.Equal(t, "Karen", view.Property.Location)
}

func TestRest_Errors(t *testing.T) {
	h := newHarness(t)
	buyer := token(t, buyerID, "buyer", false)
	stranger := token(t, strangerID, "buyer", false)
	agent := token(t, agentID, "agent", false)

	_, convID := h.startConversation(buyer)
	messages := fmt.Sprintf("/v1/conversations/%d/messages", convID)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"missing token", http.MethodGet, "/v1/conversations", "", nil, http.StatusBadRequest},
		{"bad token", http.MethodGet, "/v1/conversations", "not-a-jwt.at.all", nil, http.StatusUnauthorized},
		{"pending 2fa", http.MethodGet, "/v1/conversations", token(t, buyerID, "buyer", true), nil, http.StatusBadRequest},
		{"unknown role", http.MethodGet, "/v1/conversations", token(t, buyerID, "suspended", false), nil, http.StatusForbidden},
		{"self conversation", http.MethodPost, "/v1/conversations", agent, map[string]uint{"property_id": propertyID, "agent_id": agentID}, http.StatusForbidden},
		{"missing property", http.MethodPost, "/v1/conversations", buyer, map[string]uint{"property_id": 404, "agent_id": agentID}, http.StatusNotFound},
		{"wrong agent", http.MethodPost, "/v1/conversations", buyer, map[string]uint{"property_id": propertyID, "agent_id": strangerID}, http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/v1/conversations", buyer, map[string]uint{}, http.StatusBadRequest},
		{"not a participant", http.MethodGet, messages, stranger, nil, http.StatusForbidden},
		{"no conversation", http.MethodGet, "/v1/conversations/999", buyer, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/conversations/abc", buyer, nil, http.StatusBadRequest},
		{"empty body", http.MethodPost, messages, buyer, map[string]string{"body": ""}, http.StatusBadRequest},
		{"blank body", http.MethodPost, messages, buyer, map[string]string{"body": "   "}, http.StatusBadRequest},
		{"long body", http.MethodPost, messages, buyer, map[string]string{"body": strings.Repeat("a", 5001)}, http.StatusBadRequest},
		{"stranger sends", http.MethodPost, messages, stranger, map[string]string{"body": "hi"}, http.StatusForbidden},
		{"missing message", http.MethodDelete, fmt.Sprintf("/v1/conversations/%d/messages/999", convID), buyer, nil, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := h.do(tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, "error", env.Status)
			require.NotNil(t, env.Message)
			assert.NotEmpty(t, *env.Message)
		})
	}

	status, _ := h.do(http.MethodPost, messages, buyer, map[string]string{"body": strings.Repeat("a", 5000)})
	assert.Equal(t, http.StatusCreated, status)
}

func TestRest_SendRateLimit(t *testing.T) {
	h := newHarness(t)
	buyer := token(t, buyerID, "buyer", false)
	agent := token(t, agentID, "agent", false)
	_, convID := h.startConversation(buyer)
	path := fmt.Sprintf("/v1/conversations/%d/messages", convID)

	for i := 1; i <= 20; i++ {
		status, _ := h.do(http.MethodPost, path, buyer, map[string]string{"body": fmt.Sprintf("message %d", i)})
		require.Equal(t, http.StatusCreated, status, "send %d", i)
	}

	status, env := h.do(http.MethodPost, path, buyer, map[string]string{"body": "one too many"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	require.NotNil(t, env.Message)
	assert.Equal(t, "Too many messages", *env.Message)

	status, _ = h.do(http.MethodPost, path, agent, map[string]string{"body": "the agent is not throttled"})
	assert.Equal(t, http.StatusCreated, status)
}

func TestRest_UnknownRoute(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "error", env.Status)
}

func TestRest_ConcurrentRequestsDuringPolicyReload(t *testing.T) {
	h := newHarness(t)
	buyer := token(t, buyerID, "buyer", false)

	const workers, perWorker = 8, 5
	statuses := make(chan int, workers*perWorker)
	errs := make(chan error, workers*perWorker+perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				req := httptest.NewRequest(http.MethodGet, "/v1/messages/unread-count", nil)
				req.Header.Set("Authorization", "Bearer "+buyer)
				resp, err := h.app.Test(req, -1)
				if err != nil {
					errs <- err
					continue
				}
				resp.Body.Close()
				statuses <- resp.StatusCode
			}
		}()
	}

	// the scheduled reload runs alongside live requests
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < perWorker; j++ {
			if err := h.enforcer.LoadPolicy(); err != nil {
				errs <- err
			}
		}
	}()

	wg.Wait()
	close(statuses)
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	n := 0
	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
		n++
	}
	assert.Equal(t, workers*perWorker, n)
}
