package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"realty-messenger/model"
	"realty-messenger/store"

	"go.uber.org/zap"
)

const (
	MaxBodyLength   = 5000
	DefaultPageSize = 50
	MaxPageSize     = 100
)

var systemBodies = map[string]string{
	model.SystemKindPropertySold: "This property has been sold.",
}

// Messenger implements the buyer/agent conversation operations on top of a
// Store, pushing committed changes through a Notifier.
type Messenger struct {
	store    store.Store
	notifier Notifier
	thumbs   Thumbnailer
	log      *zap.Logger
}

// NewMessenger wires a Messenger. A nil notifier, thumbnailer or logger
// disables that concern.
func NewMessenger(st store.Store, notifier Notifier, thumbs Thumbnailer, log *zap.Logger) *Messenger {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if thumbs == nil {
		thumbs = identityThumbnailer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Messenger{
		store:    st,
		notifier: notifier,
		thumbs:   thumbs,
		log:      log.Named("messenger"),
	}
}

func (m *Messenger) unexpected(op string, err error, fields ...zap.Field) error {
	m.log.Error(op, append(fields, zap.Error(err))...)
	return &Error{Kind: KindUnexpected, Message: op, Err: err}
}

// StartOrResume returns the conversation for (property, requester, agent),
// creating it on first contact. The bool reports whether it was created.
func (m *Messenger) StartOrResume(ctx context.Context, requesterID, propertyID, agentID uint) (*model.Conversation, bool, error) {
	if requesterID == agentID {
		return nil, false, newError(KindInvalidParticipants, "Cannot start a conversation with yourself")
	}

	property, err := m.store.GetProperty(ctx, propertyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, newError(KindNotFound, "Property not found")
	}
	if err != nil {
		return nil, false, m.unexpected("load property", err, zap.Uint("property_id", propertyID))
	}
	if property.AgentID != agentID {
		return nil, false, newError(KindOwnershipMismatch, "Agent does not own this property")
	}

	conv, created, err := m.store.FindOrCreateConversation(ctx, propertyID, requesterID, agentID)
	if err != nil {
		return nil, false, m.unexpected("find or create conversation", err,
			zap.Uint("property_id", propertyID),
			zap.Uint("buyer_id", requesterID),
			zap.Uint("agent_id", agentID),
		)
	}

	if created {
		m.log.Info("conversation started",
			zap.Uint("conversation_id", conv.ID),
			zap.Uint("property_id", propertyID),
		)
	}
	return conv, created, nil
}

// Authorize loads a conversation and checks that requesterID participates in it.
func (m *Messenger) Authorize(ctx context.Context, requesterID, conversationID uint) (*model.Conversation, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Conversation not found")
	}
	if err != nil {
		return nil, m.unexpected("load conversation", err, zap.Uint("conversation_id", conversationID))
	}
	if !conv.HasParticipant(requesterID) {
		return nil, newError(KindForbidden, "Not a participant")
	}
	return conv, nil
}

func (m *Messenger) FetchConversation(ctx context.Context, requesterID, conversationID uint) (*ConversationView, error) {
	conv, err := m.store.GetConversationDetails(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Conversation not found")
	}
	if err != nil {
		return nil, m.unexpected("load conversation details", err, zap.Uint("conversation_id", conversationID))
	}
	if !conv.HasParticipant(requesterID) {
		return nil, newError(KindForbidden, "Not a participant")
	}

	view := m.viewConversation(conv)
	return &view, nil
}

// ListConversations returns the requester's inbox, most recent message first.
func (m *Messenger) ListConversations(ctx context.Context, requesterID uint) ([]ConversationListItem, error) {
	summaries, err := m.store.ListConversationsForUser(ctx, requesterID)
	if err != nil {
		return nil, m.unexpected("list conversations", err, zap.Uint("user_id", requesterID))
	}

	ids := make([]uint, len(summaries))
	for i, s := range summaries {
		ids[i] = s.Conversation.ID
	}
	unread, err := m.store.CountUnreadByConversation(ctx, ids, requesterID)
	if err != nil {
		return nil, m.unexpected("count unread by conversation", err, zap.Uint("user_id", requesterID))
	}

	items := make([]ConversationListItem, 0, len(summaries))
	for _, s := range summaries {
		conv := s.Conversation
		view := m.viewConversation(&conv)

		other := view.Buyer
		if conv.BuyerID == requesterID {
			other = view.Agent
		}

		items = append(items, ConversationListItem{
			ConversationView: view,
			OtherUser:        other,
			LastMessage:      s.LastMessage,
			UnreadCount:      unread[conv.ID],
		})
	}
	return items, nil
}

// FetchMessages marks the counterpart's messages read, then returns one page
// of the conversation in ascending creation order.
func (m *Messenger) FetchMessages(ctx context.Context, requesterID, conversationID uint, limit, offset int) (*MessagePage, error) {
	conv, err := m.Authorize(ctx, requesterID, conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := m.markRead(ctx, conv, requesterID); err != nil {
		return nil, err
	}

	limit, offset = ClampPage(limit, offset)
	messages, total, err := m.store.ListMessages(ctx, conv.ID, limit, offset)
	if err != nil {
		return nil, m.unexpected("list messages", err, zap.Uint("conversation_id", conv.ID))
	}

	return &MessagePage{
		Messages: messages,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// ClampPage applies the default and maximum page size and floors offset at zero.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ValidateBody trims body and checks its length in characters.
func ValidateBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", newError(KindValidation, "Message body is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxBodyLength {
		return "", newError(KindValidation, "Message too long (max 5000 characters)")
	}
	return trimmed, nil
}

// SendMessage stores a message from senderID and pushes it to the recipient.
func (m *Messenger) SendMessage(ctx context.Context, senderID, conversationID uint, body string) (*model.Message, error) {
	body, err := ValidateBody(body)
	if err != nil {
		return nil, err
	}

	conv, err := m.Authorize(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	msg := model.NewHumanMessage(conv.ID, senderID, body)
	if err := m.store.CreateMessage(ctx, msg); err != nil {
		return nil, m.unexpected("create message", err,
			zap.Uint("conversation_id", conv.ID),
			zap.Uint("sender_id", senderID),
		)
	}

	full, err := m.store.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, m.unexpected("load message", err, zap.Uint("message_id", msg.ID))
	}

	m.notifier.Notify(ctx, conv.Counterpart(senderID), EventNewMessage, NewMessagePayload{
		Message:        full,
		ConversationID: conv.ID,
	})
	return full, nil
}

// DeleteMessage removes a message its requester sent.
func (m *Messenger) DeleteMessage(ctx context.Context, requesterID, conversationID, messageID uint) error {
	conv, err := m.Authorize(ctx, requesterID, conversationID)
	if err != nil {
		return err
	}

	msg, err := m.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && msg.ConversationID != conv.ID) {
		return newError(KindNotFound, "Message not found")
	}
	if err != nil {
		return m.unexpected("load message", err, zap.Uint("message_id", messageID))
	}
	if !msg.SentBy(requesterID) {
		return newError(KindForbidden, "Can only delete your own messages")
	}

	if err := m.store.DeleteMessage(ctx, msg.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "Message not found")
		}
		return m.unexpected("delete message", err, zap.Uint("message_id", msg.ID))
	}

	m.notifier.Notify(ctx, conv.Counterpart(requesterID), EventMessageDeleted, MessageDeletedPayload{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
	})
	return nil
}

// UnreadCount is the number of messages userID has received and not read,
// across every conversation.
func (m *Messenger) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	n, err := m.store.CountUnreadForUser(ctx, userID)
	if err != nil {
		return 0, m.unexpected("count unread", err, zap.Uint("user_id", userID))
	}
	return n, nil
}

// MarkRead marks the counterpart's messages read and returns how many changed.
func (m *Messenger) MarkRead(ctx context.Context, requesterID, conversationID uint) (int64, error) {
	conv, err := m.Authorize(ctx, requesterID, conversationID)
	if err != nil {
		return 0, err
	}
	return m.markRead(ctx, conv, requesterID)
}

// markRead is the only place messages flip to read. messages_read goes out
// only when a row actually changed.
func (m *Messenger) markRead(ctx context.Context, conv *model.Conversation, readerID uint) (int64, error) {
	n, err := m.store.MarkRead(ctx, conv.ID, readerID)
	if err != nil {
		return 0, m.unexpected("mark read", err,
			zap.Uint("conversation_id", conv.ID),
			zap.Uint("reader_id", readerID),
		)
	}
	if n > 0 {
		m.notifier.Notify(ctx, conv.Counterpart(readerID), EventMessagesRead, MessagesReadPayload{
			ConversationID: conv.ID,
		})
	}
	return n, nil
}

// PostSystemMessage appends a platform notice of the given kind to every
// conversation about propertyID and returns how many were notified.
func (m *Messenger) PostSystemMessage(ctx context.Context, propertyID uint, kind string) (int, error) {
	body, ok := systemBodies[kind]
	if !ok {
		return 0, newError(KindValidation, "unknown system message kind "+kind)
	}

	convs, err := m.store.ConversationsForProperty(ctx, propertyID)
	if err != nil {
		return 0, m.unexpected("list conversations for property", err, zap.Uint("property_id", propertyID))
	}

	posted := 0
	for i := range convs {
		conv := &convs[i]

		msg := model.NewSystemMessage(conv.ID, kind, body)
		if err := m.store.CreateMessage(ctx, msg); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return posted, m.unexpected("create system message", err, zap.Uint("conversation_id", conv.ID))
		}

		payload := NewMessagePayload{Message: msg, ConversationID: conv.ID}
		for _, userID := range conv.Participants() {
			m.notifier.Notify(ctx, userID, EventNewMessage, payload)
		}
		posted++
	}

	m.log.Info("system message posted",
		zap.String("kind", kind),
		zap.Uint("property_id", propertyID),
		zap.Int("conversations", posted),
	)
	return posted, nil
}

// DeleteConversationsForProperty removes every conversation about a deleted
// listing together with its messages.
func (m *Messenger) DeleteConversationsForProperty(ctx context.Context, propertyID uint) (int, error) {
	convs, err := m.store.ConversationsForProperty(ctx, propertyID)
	if err != nil {
		return 0, m.unexpected("list conversations for property", err, zap.Uint("property_id", propertyID))
	}

	deleted := 0
	for i := range convs {
		conv := &convs[i]

		if err := m.store.DeleteConversation(ctx, conv.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return deleted, m.unexpected("delete conversation", err, zap.Uint("conversation_id", conv.ID))
		}

		payload := ConversationDeletedPayload{ConversationID: conv.ID}
		for _, userID := range conv.Participants() {
			m.notifier.Notify(ctx, userID, EventConversationDeleted, payload)
		}
		deleted++
	}

	m.log.Info("conversations deleted",
		zap.Uint("property_id", propertyID),
		zap.Int("conversations", deleted),
	)
	return deleted, nil
}
