package repository

import (
	"context"

	"github.com/weiawesome/wes-chat/internal/domain"
)

//go:generate mockgen -source=interface.go -destination=mocks/mock_repository.go -package=mocks

// MessageRepository defines the interface for message persistence. Lists are
// returned in creation order. Missing records yield domain.ErrMessageNotFound.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListByAuthor(ctx context.Context, authorID string) ([]domain.Message, error)
	List(ctx context.Context) ([]domain.Message, error)
	Update(ctx context.Context, msg *domain.Message) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// UserRepository defines the interface for user persistence. Username and
// email lookups are case-insensitive.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByLogin(ctx context.Context, login string) (*domain.User, error)
}
