// Package conversationrepo implements conversation.Repository using GORM.
package conversationrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tutor-server/services/voice-api/internal/domain/conversation"
)

// ConversationRepository implements conversation.Repository.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create stores a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, conv *conversation.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// FindByPublicID retrieves a conversation by its public identifier.
func (r *ConversationRepository) FindByPublicID(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conversation.ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// FindByUser retrieves a user's most recent conversations.
func (r *ConversationRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	var convs []*conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

// UpdateStatus sets a conversation's status.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, id uint, status conversation.Status) error {
	return r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// AddMessage appends a transcript turn.
func (r *ConversationRepository) AddMessage(ctx context.Context, msg *conversation.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// FindMessages retrieves a conversation's messages in order.
func (r *ConversationRepository) FindMessages(ctx context.Context, conversationID uint) ([]*conversation.Message, error) {
	var msgs []*conversation.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

// MarkStaleEnded flips conversations still active past the cutoff to ended.
func (r *ConversationRepository) MarkStaleEnded(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("status = ? AND updated_at < ?", conversation.StatusActive, cutoff).
		Update("status", conversation.StatusEnded)
	return res.RowsAffected, res.Error
}
