package service

import (
	"context"

	"realty-messenger/model"
)

// Events pushed to a user's addressable channel.
const (
	EventNewMessage          = "new_message"
	EventMessagesRead        = "messages_read"
	EventMessageDeleted      = "message_deleted"
	EventConversationDeleted = "conversation_deleted"
)

// Ephemeral signals clients send through the gateway. Typing signals are
// relayed to the rest of the conversation room and never stored.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTyping            = "typing"
	EventStopTyping        = "stop_typing"
)

type TypingPayload struct {
	ConversationID uint `json:"conversationId"`
	UserID         uint `json:"userId"`
}

type NewMessagePayload struct {
	Message        *model.Message `json:"message"`
	ConversationID uint           `json:"conversationId"`
}

type MessagesReadPayload struct {
	ConversationID uint `json:"conversationId"`
}

type MessageDeletedPayload struct {
	MessageID      uint `json:"messageId"`
	ConversationID uint `json:"conversationId"`
}

type ConversationDeletedPayload struct {
	ConversationID uint `json:"conversationId"`
}

// Notifier delivers an event to one user. Delivery is best effort: an
// implementation logs its own failures and never blocks the caller on a
// recipient that is offline.
type Notifier interface {
	Notify(ctx context.Context, userID uint, event string, payload any)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, userID uint, event string, payload any)

func (f NotifierFunc) Notify(ctx context.Context, userID uint, event string, payload any) {
	f(ctx, userID, event, payload)
}

// Notifiers fans one event out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, userID uint, event string, payload any) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, userID, event, payload)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uint, string, any) {}

// Thumbnailer turns a stored listing image URL into the URL shown in summaries.
type Thumbnailer interface {
	Thumbnail(imageURL string) string
}

type identityThumbnailer struct{}

func (identityThumbnailer) Thumbnail(imageURL string) string { return imageURL }
