package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat/internal/domain"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create creates a new user and assigns its id.
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	user.ID = uuid.New().String()

	model := domain.UserToModel(user)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		user.ID = ""
		return r.handleError(err)
	}

	user.CreatedAt = model.CreatedAt.UTC()
	return nil
}

// GetByID retrieves a user by id.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return model.ToDomain(), nil
}

// GetByLogin retrieves a user by username or email, case-insensitively.
func (r *GormUserRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	key := domain.NormalizeKey(login)

	var model domain.UserModel
	err := r.db.WithContext(ctx).
		Where("username_normalized = ? OR email_normalized = ?", key, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by login: %w", err)
	}
	return model.ToDomain(), nil
}

// handleError converts unique-constraint violations to domain errors. Only
// the constraint name is matched: MySQL quotes the offending value in the
// message, and a username may well contain "email".
func (r *GormUserRepository) handleError(err error) error {
	errStr := err.Error()

	// PostgreSQL, SQLite, MySQL
	if strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "UNIQUE constraint") ||
		strings.Contains(errStr, "Duplicate entry") {
		constraint := errStr
		if i := strings.LastIndex(errStr, " for key "); i >= 0 {
			constraint = errStr[i:]
		}
		if strings.Contains(constraint, "email_normalized") {
			return domain.ErrEmailExists
		}
		if strings.Contains(constraint, "username_normalized") {
			return domain.ErrUsernameExists
		}
	}

	return fmt.Errorf("failed to create user: %w", err)
}
