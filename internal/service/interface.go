package service

import (
	"context"
	"time"

	"github.com/weiawesome/wes-chat/internal/domain"
)

// MessageService defines the message store operations exposed to transports.
type MessageService interface {
	Create(ctx context.Context, author domain.UserIdentity, content string) (*domain.Message, error)
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	GetByAuthor(ctx context.Context, authorID string) ([]domain.Message, error)
	GetAll(ctx context.Context) ([]domain.Message, error)
	Edit(ctx context.Context, actor domain.UserIdentity, id, content string) (*domain.Message, error)
	Delete(ctx context.Context, actor domain.UserIdentity, id string) error
	Count(ctx context.Context) (int64, error)
}

// IDGenerator mints message ids with their creation instant.
type IDGenerator interface {
	Next() (string, time.Time, error)
}

// Notifier receives messages after they are persisted.
type Notifier interface {
	Notify(msg *domain.Message, author domain.UserIdentity) bool
}

// Authorizer decides whether an identity may modify a message.
type Authorizer interface {
	CanModify(id domain.UserIdentity, ownerID string) bool
}
