package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const tempPrefix = ".tmp-"

// LocalStore keeps objects as files below a base directory.
type LocalStore struct {
	root string
}

// LocalConfig holds configuration for local storage.
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("local storage requires base_path")
	}
	root, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// cleanKey normalizes key so it can never leave the root.
func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

func (s *LocalStore) file(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(cleanKey(key)))
}

// Put writes to a temp file and renames it into place.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if cleanKey(key) == "" {
		return fmt.Errorf("invalid key: %q", key)
	}
	target := s.file(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}
