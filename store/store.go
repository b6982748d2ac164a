package store

import (
	"context"
	"errors"

	"realty-messenger/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ConversationSummary pairs a conversation with its most recent message.
type ConversationSummary struct {
	Conversation model.Conversation
	LastMessage  model.Message
}

// Store persists conversations and messages.
type Store interface {
	// FindOrCreateConversation is atomic on the (property, buyer, agent) triple.
	// The bool reports whether a row was inserted.
	FindOrCreateConversation(ctx context.Context, propertyID, buyerID, agentID uint) (*model.Conversation, bool, error)
	GetConversation(ctx context.Context, id uint) (*model.Conversation, error)
	// GetConversationDetails preloads participants and the listing with its images.
	GetConversationDetails(ctx context.Context, id uint) (*model.Conversation, error)
	// ListConversationsForUser returns conversations with at least one message, most recent first.
	ListConversationsForUser(ctx context.Context, userID uint) ([]ConversationSummary, error)
	ConversationIDsForUser(ctx context.Context, userID uint) ([]uint, error)
	ConversationsForProperty(ctx context.Context, propertyID uint) ([]model.Conversation, error)
	// DeleteConversation removes the conversation and every message in it.
	DeleteConversation(ctx context.Context, id uint) error

	GetProperty(ctx context.Context, id uint) (*model.Property, error)

	// CreateMessage inserts the message and bumps the conversation's updated_at to its creation time.
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id uint) (*model.Message, error)
	// ListMessages returns one page in ascending creation order plus the conversation's total message count.
	ListMessages(ctx context.Context, conversationID uint, limit, offset int) ([]model.Message, int64, error)
	DeleteMessage(ctx context.Context, id uint) error

	CountUnread(ctx context.Context, conversationID, excludingSender uint) (int64, error)
	CountUnreadByConversation(ctx context.Context, conversationIDs []uint, excludingSender uint) (map[uint]int64, error)
	CountUnreadForUser(ctx context.Context, userID uint) (int64, error)
	// MarkRead flips read=false to true for messages not sent by excludingSender and returns the rows changed.
	MarkRead(ctx context.Context, conversationID, excludingSender uint) (int64, error)
}
