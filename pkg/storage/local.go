package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Local stores files below a directory on disk.
type Local struct {
	root string
	now  func() time.Time
}

// NewLocal builds a filesystem store rooted at root.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = "./storage"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: root, now: time.Now}, nil
}

// Save writes data under folder and returns the relative key.
func (l *Local) Save(ctx context.Context, data []byte, filename, folder string) (string, error) {
	key := ObjectKey(folder, filename, l.now())
	target := filepath.Join(l.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create storage folder: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write stored file: %w", err)
	}
	return key, nil
}

// Get reads the file stored at key.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(cleaned)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return data, nil
}

// Delete removes the file at key and reports whether it existed.
func (l *Local) Delete(ctx context.Context, key string) (bool, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}

	if err := os.Remove(filepath.Join(l.root, filepath.FromSlash(cleaned))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete stored file: %w", err)
	}
	return true, nil
}
