package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-chat/internal/domain"
)

// MessageCache is a read-through cache for single messages.
//
// Invalidate drops the entry for id and leaves a short-lived tombstone;
// Set is skipped while the tombstone lives, so a read that loaded the row
// before an edit or delete cannot write the stale copy back.
type MessageCache interface {
	Get(ctx context.Context, id string) (*domain.Message, error)
	Set(ctx context.Context, msg *domain.Message, ttl time.Duration) error
	Invalidate(ctx context.Context, id string) error
	Close() error
}
