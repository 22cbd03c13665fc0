package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts a message. Id and timestamps must already be assigned.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(domain.MessageToModel(msg)).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID retrieves a message by id.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return model.ToDomain(), nil
}

// ListByAuthor returns the author's messages in creation order.
func (r *GormMessageRepository) ListByAuthor(ctx context.Context, authorID string) ([]domain.Message, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages by author: %w", err)
	}
	return toMessages(models), nil
}

// List returns every message in creation order.
func (r *GormMessageRepository) List(ctx context.Context) ([]domain.Message, error) {
	var models []domain.MessageModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return toMessages(models), nil
}

// Update persists the mutable fields of a message (content and edit state).
func (r *GormMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{
			"content":    msg.Content,
			"edited_at":  msg.EditedAt,
			"was_edited": msg.WasEdited,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// Delete physically removes a message.
func (r *GormMessageRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.MessageModel{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// Count returns the number of stored messages.
func (r *GormMessageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func toMessages(models []domain.MessageModel) []domain.Message {
	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *models[i].ToDomain())
	}
	return messages
}
