package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"realty-messenger/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) FindOrCreateConversation(ctx context.Context, propertyID, buyerID, agentID uint) (*model.Conversation, bool, error) {
	conv := model.Conversation{PropertyID: propertyID, BuyerID: buyerID, AgentID: agentID}

	// the unique index decides the race, not a prior lookup
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&conv)
	if res.Error != nil {
		return nil, false, fmt.Errorf("inserting conversation: %w", res.Error)
	}
	if res.RowsAffected == 1 && conv.ID != 0 {
		return &conv, true, nil
	}

	var existing model.Conversation
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND buyer_id = ? AND agent_id = ?", propertyID, buyerID, agentID).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("loading conversation: %w", notFound(err))
	}
	return &existing, false, nil
}

func (s *GormStore) GetConversation(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (s *GormStore) withDetails(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Buyer").
		Preload("Agent").
		Preload("Property").
		Preload("Property.Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_primary DESC").Order("id ASC")
		})
}

func (s *GormStore) GetConversationDetails(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.withDetails(ctx).First(&conv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (s *GormStore) ListConversationsForUser(ctx context.Context, userID uint) ([]ConversationSummary, error) {
	var convs []model.Conversation
	err := s.withDetails(ctx).
		Where("buyer_id = ? OR agent_id = ?", userID, userID).
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if len(convs) == 0 {
		return []ConversationSummary{}, nil
	}

	ids := make([]uint, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}

	latest := s.db.Model(&model.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", ids).
		Group("conversation_id")

	var last []model.Message
	err = s.db.WithContext(ctx).
		Preload("Sender").
		Where("id IN (?)", latest).
		Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("loading last messages: %w", err)
	}

	byConversation := make(map[uint]model.Message, len(last))
	for _, m := range last {
		byConversation[m.ConversationID] = m
	}

	out := make([]ConversationSummary, 0, len(byConversation))
	for _, c := range convs {
		m, ok := byConversation[c.ID]
		if !ok {
			continue
		}
		out = append(out, ConversationSummary{Conversation: c, LastMessage: m})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return out, nil
}

func (s *GormStore) ConversationIDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("buyer_id = ? OR agent_id = ?", userID, userID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing conversation ids: %w", err)
	}
	return ids, nil
}

func (s *GormStore) ConversationsForProperty(ctx context.Context, propertyID uint) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("id ASC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("listing conversations for property: %w", err)
	}
	return convs, nil
}

func (s *GormStore) DeleteConversation(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		res := tx.Delete(&model.Conversation{}, id)
		if res.Error != nil {
			return fmt.Errorf("deleting conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) GetProperty(ctx context.Context, id uint) (*model.Property, error) {
	var p model.Property
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *GormStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		res := tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			UpdateColumn("updated_at", msg.CreatedAt)
		if res.Error != nil {
			return fmt.Errorf("bumping conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) GetMessage(ctx context.Context, id uint) (*model.Message, error) {
	var m model.Message
	if err := s.db.WithContext(ctx).Preload("Sender").First(&m, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) ListMessages(ctx context.Context, conversationID uint, limit, offset int) ([]model.Message, int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("counting messages: %w", err)
	}

	messages := []model.Message{}
	err = s.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing messages: %w", err)
	}

	return messages, total, nil
}

func (s *GormStore) DeleteMessage(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Message{}, id)
	if res.Error != nil {
		return fmt.Errorf("deleting message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// unread selects messages a user has received and not read. System messages
// have a NULL sender and never satisfy sender_id <> ?.
func unread(db *gorm.DB, excludingSender uint) *gorm.DB {
	return db.Model(&model.Message{}).
		Where(map[string]any{"read": false}).
		Where("sender_id <> ?", excludingSender)
}

func (s *GormStore) CountUnread(ctx context.Context, conversationID, excludingSender uint) (int64, error) {
	var n int64
	err := unread(s.db.WithContext(ctx), excludingSender).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting unread: %w", err)
	}
	return n, nil
}

func (s *GormStore) CountUnreadByConversation(ctx context.Context, conversationIDs []uint, excludingSender uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ConversationID uint
		Count          int64
	}
	err := unread(s.db.WithContext(ctx), excludingSender).
		Select("conversation_id, COUNT(*) AS count").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting unread by conversation: %w", err)
	}

	for _, r := range rows {
		counts[r.ConversationID] = r.Count
	}
	return counts, nil
}

func (s *GormStore) CountUnreadForUser(ctx context.Context, userID uint) (int64, error) {
	ids, err := s.ConversationIDsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var n int64
	err = unread(s.db.WithContext(ctx), userID).
		Where("conversation_id IN ?", ids).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting unread for user: %w", err)
	}
	return n, nil
}

func (s *GormStore) MarkRead(ctx context.Context, conversationID, excludingSender uint) (int64, error) {
	res := unread(s.db.WithContext(ctx), excludingSender).
		Where("conversation_id = ?", conversationID).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("marking read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
