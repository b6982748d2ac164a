package model

import "time"

// Conversation is unique per (property, buyer, agent).
type Conversation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PropertyID uint      `gorm:"not null;uniqueIndex:idx_conversation_unique,priority:1" json:"property_id"`
	BuyerID    uint      `gorm:"not null;uniqueIndex:idx_conversation_unique,priority:2;index" json:"buyer_id"`
	AgentID    uint      `gorm:"not null;uniqueIndex:idx_conversation_unique,priority:3;index" json:"agent_id"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Buyer    *User     `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Agent    *User     `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
	Property *Property `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
}

// HasParticipant reports whether userID is the buyer or the agent.
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.BuyerID == userID || c.AgentID == userID
}

// Counterpart returns the other participant's id.
func (c *Conversation) Counterpart(userID uint) uint {
	if c.BuyerID == userID {
		return c.AgentID
	}
	return c.BuyerID
}

// Participants returns buyer then agent.
func (c *Conversation) Participants() [2]uint {
	return [2]uint{c.BuyerID, c.AgentID}
}

const (
	SystemKindPropertySold = "property_sold"
)

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index:idx_conv_created,priority:1" json:"conversation_id"`
	SenderID       *uint     `gorm:"index" json:"sender_id"`
	SystemKind     string    `gorm:"size:32" json:"system_kind,omitempty"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	Read           bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt      time.Time `gorm:"index:idx_conv_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// Author identifies who wrote a message: a participant or the platform.
type Author interface {
	isAuthor()
}

type Human struct {
	SenderID uint
}

type System struct {
	Kind string
}

func (Human) isAuthor()  {}
func (System) isAuthor() {}

func (m *Message) Author() Author {
	if m.SenderID == nil {
		return System{Kind: m.SystemKind}
	}
	return Human{SenderID: *m.SenderID}
}

// SentBy reports whether userID authored the message.
func (m *Message) SentBy(userID uint) bool {
	h, ok := m.Author().(Human)
	return ok && h.SenderID == userID
}

func NewHumanMessage(conversationID, senderID uint, body string) *Message {
	return &Message{
		ConversationID: conversationID,
		SenderID:       &senderID,
		Body:           body,
	}
}

func NewSystemMessage(conversationID uint, kind, body string) *Message {
	return &Message{
		ConversationID: conversationID,
		SystemKind:     kind,
		Body:           body,
	}
}
