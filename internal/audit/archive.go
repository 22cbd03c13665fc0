package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/pkg/storage"
)

// Record is an archived snapshot of a message change.
type Record struct {
	Action    string          `json:"action"`
	ActorID   string          `json:"actorId"`
	MessageID string          `json:"messageId"`
	Before    *domain.Message `json:"before,omitempty"`
	After     *domain.Message `json:"after,omitempty"`
	At        time.Time       `json:"at"`
}

// Archiver writes message change records to object storage.
type Archiver interface {
	Archive(ctx context.Context, rec Record) error
}

// StorageArchiver stores one JSON object per record under
// <prefix>/<messageID>/<unix-nanos>-<action>.json.
type StorageArchiver struct {
	store  storage.Store
	prefix string
	now    func() time.Time
}

// NewStorageArchiver creates an archiver on top of a storage backend.
func NewStorageArchiver(store storage.Store, prefix string) *StorageArchiver {
	return &StorageArchiver{
		store:  store,
		prefix: prefix,
		now:    time.Now,
	}
}

// Archive writes rec. A zero At is stamped with the current time.
func (a *StorageArchiver) Archive(ctx context.Context, rec Record) error {
	if rec.At.IsZero() {
		rec.At = a.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	key := a.Key(rec)
	if err := a.store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return nil
}

// Key returns the object key for rec.
func (a *StorageArchiver) Key(rec Record) string {
	return path.Join(a.prefix, rec.MessageID, fmt.Sprintf("%d-%s.json", rec.At.UnixNano(), rec.Action))
}
