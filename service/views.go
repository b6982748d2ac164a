package service

import (
	"time"

	"realty-messenger/model"
)

// UserSummary holds a participant's public profile fields.
type UserSummary struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// PropertySummary is the listing card shown alongside a conversation.
type PropertySummary struct {
	ID        uint    `json:"id"`
	Location  string  `json:"location"`
	Price     float64 `json:"price"`
	Type      string  `json:"type"`
	Purpose   string  `json:"purpose"`
	Thumbnail string  `json:"thumbnail,omitempty"`
}

type ConversationView struct {
	ID         uint             `json:"id"`
	PropertyID uint             `json:"property_id"`
	BuyerID    uint             `json:"buyer_id"`
	AgentID    uint             `json:"agent_id"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	Buyer      *UserSummary     `json:"buyer,omitempty"`
	Agent      *UserSummary     `json:"agent,omitempty"`
	Property   *PropertySummary `json:"property,omitempty"`
}

// ConversationListItem is one row of a user's inbox.
type ConversationListItem struct {
	ConversationView
	OtherUser   *UserSummary  `json:"other_user"`
	LastMessage model.Message `json:"lastMessage"`
	UnreadCount int64         `json:"unreadCount"`
}

type MessagePage struct {
	Messages []model.Message `json:"messages"`
	Total    int64           `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

func summarizeUser(u *model.User) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

func (m *Messenger) summarizeProperty(p *model.Property) *PropertySummary {
	if p == nil {
		return nil
	}
	s := &PropertySummary{
		ID:       p.ID,
		Location: p.Location,
		Price:    p.Price,
		Type:     p.Type,
		Purpose:  p.Purpose,
	}
	// images arrive primary first
	if len(p.Images) > 0 {
		s.Thumbnail = m.thumbs.Thumbnail(p.Images[0].ImageURL)
	}
	return s
}

func (m *Messenger) viewConversation(c *model.Conversation) ConversationView {
	return ConversationView{
		ID:         c.ID,
		PropertyID: c.PropertyID,
		BuyerID:    c.BuyerID,
		AgentID:    c.AgentID,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Buyer:      summarizeUser(c.Buyer),
		Agent:      summarizeUser(c.Agent),
		Property:   m.summarizeProperty(c.Property),
	}
}
