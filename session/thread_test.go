package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"realty-messenger/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ids(t *Thread) []uint {
	var out []uint
	for _, m := range t.Messages() {
		out = append(out, m.ID)
	}
	return out
}

func TestWindowMath(t *testing.T) {
	assert.Equal(t, 0, NewestOffset(0))
	assert.Equal(t, 0, NewestOffset(50))
	assert.Equal(t, 70, NewestOffset(120))

	for _, tc := range []struct {
		total         int64
		loaded        int
		limit, offset int
	}{
		{120, 50, 50, 20},
		{120, 100, 20, 0},
		{120, 120, 0, 0},
		{30, 30, 0, 0},
		{51, 50, 1, 0},
	} {
		limit, offset := EarlierWindow(tc.total, tc.loaded)
		assert.Equal(t, tc.limit, limit, "total %d loaded %d", tc.total, tc.loaded)
		assert.Equal(t, tc.offset, offset, "total %d loaded %d", tc.total, tc.loaded)
	}
}

func TestThread_LoadShort(t *testing.T) {
	api := newFakeAPI(3)
	th := NewThread(api, nil, self, convID, zap.NewNop())

	require.NoError(t, th.Load(context.Background()))
	assert.Equal(t, []string{"messages 50 0"}, api.takeCalls())
	assert.Equal(t, []uint{1, 2, 3}, ids(th))
	assert.False(t, th.HasMore())
}

func TestThread_LoadNewestThenEarlier(t *testing.T) {
	api := newFakeAPI(120)
	th := NewThread(api, nil, self, convID, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, th.Load(ctx))
	assert.Equal(t, []string{"messages 50 0", "messages 50 70"}, api.takeCalls())
	got := ids(th)
	require.Len(t, got, 50)
	assert.Equal(t, uint(71), got[0])
	assert.Equal(t, uint(120), got[49])
	assert.True(t, th.HasMore())

	require.NoError(t, th.LoadEarlier(ctx))
	assert.Equal(t, []string{"messages 50 20"}, api.takeCalls())
	assert.Len(t, th.Messages(), 100)

	require.NoError(t, th.LoadEarlier(ctx))
	assert.Equal(t, []string{"messages 20 0"}, api.takeCalls())
	assert.False(t, th.HasMore())

	got = ids(th)
	require.Len(t, got, 120)
	for i, id := range got {
		assert.Equal(t, uint(i+1), id)
	}

	require.NoError(t, th.LoadEarlier(ctx))
	assert.Empty(t, api.takeCalls())
}

func TestThread_PushedMessagesStaySorted(t *testing.T) {
	api := newFakeAPI(2)
	th := NewThread(api, nil, self, convID, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, th.Load(ctx))
	api.takeCalls()

	late := message(5, counterpart, "sent last")
	early := message(4, counterpart, "sent first")
	require.NoError(t, th.OnNewMessage(ctx, service.NewMessagePayload{Message: &late, ConversationID: convID}))
	require.NoError(t, th.OnNewMessage(ctx, service.NewMessagePayload{Message: &early, ConversationID: convID}))
	require.NoError(t, th.OnNewMessage(ctx, service.NewMessagePayload{Message: &late, ConversationID: convID}))

	assert.Equal(t, []uint{1, 2, 4, 5}, ids(th))
	assert.Equal(t, int64(4), th.Total(), "a duplicate does not bump the total")
	assert.Equal(t, []string{"read 7", "read 7", "read 7"}, api.takeCalls())

	other := message(6, counterpart, "elsewhere")
	require.NoError(t, th.OnNewMessage(ctx, service.NewMessagePayload{Message: &other, ConversationID: convID + 1}))
	assert.Len(t, th.Messages(), 4)
	assert.Empty(t, api.takeCalls())

	mine := message(8, self, "echo of my own send")
	require.NoError(t, th.OnNewMessage(ctx, service.NewMessagePayload{Message: &mine, ConversationID: convID}))
	assert.Empty(t, api.takeCalls(), "own messages are not marked read")

	api.readErr = errors.New("offline")
	theirs := message(9, counterpart, "hello?")
	assert.Error(t, th.OnNewMessage(ctx, service.NewMessagePayload{Message: &theirs, ConversationID: convID}))
	assert.Contains(t, ids(th), uint(9))
}

func TestThread_Send(t *testing.T) {
	api := newFakeAPI(0)
	out := &signals{}
	typing := NewTyping(out, idle)
	defer typing.Close()
	th := NewThread(api, typing, self, convID, zap.NewNop())
	ctx := context.Background()

	_, err := th.Send(ctx)
	assert.ErrorIs(t, err, ErrEmptyDraft)
	assert.True(t, th.SetDraft("   "))
	_, err = th.Send(ctx)
	assert.ErrorIs(t, err, ErrEmptyDraft)
	api.takeCalls()

	require.True(t, th.SetDraft("  Is it still available?  "))
	msg, err := th.Send(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Is it still available?", msg.Body)
	assert.Empty(t, th.Draft())
	assert.Equal(t, int64(1), th.Total())
	assert.Equal(t, []string{"send Is it still available?"}, api.takeCalls())

	sigs := out.snapshot()
	require.NotEmpty(t, sigs)
	assert.Equal(t, signal{service.EventStopTyping, convID}, sigs[len(sigs)-1])
	assert.Zero(t, typing.Pending())

	api.sendErr = errors.New("429")
	require.True(t, th.SetDraft("one too many"))
	_, err = th.Send(ctx)
	assert.Error(t, err)
	assert.Equal(t, "one too many", th.Draft(), "a failed send restores the draft")
	assert.Equal(t, int64(1), th.Total())
}

func TestThread_SetDraftLimit(t *testing.T) {
	th := NewThread(newFakeAPI(0), nil, self, convID, zap.NewNop())

	long := make([]rune, service.MaxBodyLength+1)
	for i := range long {
		long[i] = 'é'
	}
	assert.False(t, th.SetDraft(string(long)))
	assert.True(t, th.SetDraft(string(long[1:])))
}

func TestThread_ReadReceiptsAndDeletes(t *testing.T) {
	api := newFakeAPI(4)
	th := NewThread(api, nil, self, convID, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, th.Load(ctx))

	th.OnMessagesRead(service.MessagesReadPayload{ConversationID: convID + 1})
	for _, m := range th.Messages() {
		assert.False(t, m.Read)
	}

	th.OnMessagesRead(service.MessagesReadPayload{ConversationID: convID})
	for _, m := range th.Messages() {
		assert.Equal(t, m.SentBy(self), m.Read, "message %d", m.ID)
	}

	th.OnMessageDeleted(service.MessageDeletedPayload{MessageID: 1, ConversationID: convID})
	th.OnMessageDeleted(service.MessageDeletedPayload{MessageID: 99, ConversationID: convID})
	assert.Equal(t, []uint{2, 3, 4}, ids(th))
	assert.Equal(t, int64(3), th.Total())

	require.NoError(t, th.Delete(ctx, 2))
	assert.Equal(t, []uint{3, 4}, ids(th))
	assert.Equal(t, int64(2), th.Total())

	assert.Error(t, th.Delete(ctx, 2))
	assert.Equal(t, int64(2), th.Total())
}

func TestThread_Handle(t *testing.T) {
	th := NewThread(newFakeAPI(0), nil, self, convID, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, th.Handle(ctx, service.EventTyping, []byte(`{"conversationId":7,"userId":2}`)))
	assert.Equal(t, counterpart, th.TypingUser())

	require.NoError(t, th.Handle(ctx, service.EventTyping, []byte(`{"conversationId":7,"userId":1}`)))
	assert.Equal(t, counterpart, th.TypingUser(), "own echo ignored")

	require.NoError(t, th.Handle(ctx, service.EventStopTyping, []byte(`{"conversationId":8,"userId":2}`)))
	assert.Equal(t, counterpart, th.TypingUser(), "other conversation ignored")

	require.NoError(t, th.Handle(ctx, service.EventStopTyping, []byte(`{"conversationId":7,"userId":2}`)))
	assert.Zero(t, th.TypingUser())

	require.NoError(t, th.Handle(ctx, service.EventConversationDeleted, []byte(`{"conversationId":7}`)))
	assert.True(t, th.Deleted())

	assert.Error(t, th.Handle(ctx, service.EventMessageDeleted, []byte(`[]`)))
	assert.NoError(t, th.Handle(ctx, "unknown", nil))
}

func TestThread_FocusWhileOpen(t *testing.T) {
	api := newFakeAPI(2)
	c := NewController(api, zap.NewNop())
	out := &signals{}
	typing := NewTyping(out, time.Hour)
	defer typing.Close()
	th := NewThread(api, typing, self, convID, zap.NewNop()).WithFocus(c)
	ctx := context.Background()

	require.NoError(t, th.Load(ctx))
	assert.Equal(t, convID, c.Focused())

	incoming := message(3, counterpart, "still there?")
	pushed := service.NewMessagePayload{Message: &incoming, ConversationID: convID}
	c.OnNewMessage(pushed)
	require.NoError(t, th.OnNewMessage(ctx, pushed))
	assert.Zero(t, c.Unread(), "the open thread does not bump the badge")

	require.True(t, th.SetDraft("yes"))
	th.Close()
	assert.Zero(t, c.Focused())
	assert.Zero(t, typing.Pending())
	assert.Equal(t, 1, out.count(service.EventStopTyping))

	th.Close()
	assert.Equal(t, 1, out.count(service.EventStopTyping), "a second close sends nothing")

	later := message(4, counterpart, "hello?")
	c.OnNewMessage(service.NewMessagePayload{Message: &later, ConversationID: convID})
	assert.Equal(t, int64(1), c.Unread())
}
