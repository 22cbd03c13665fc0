package storage

import (
	"context"
	"fmt"
)

// Store is an append-only sink for small immutable objects addressed by
// slash-separated keys. Reading the objects back is left to the tooling of
// the backend (the filesystem, the S3 console or CLI).
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Config selects and configures a storage backend.
type Config struct {
	Driver string      `mapstructure:"driver"` // "local", "s3"
	Local  LocalConfig `mapstructure:"local"`
	S3     S3Config    `mapstructure:"s3"`
}

// New creates the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	case "local", "":
		return NewLocalStore(cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
