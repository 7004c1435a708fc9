// Package snapshot persists small keyed collections as a single JSON document,
// either on local disk or in an S3 object.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshotter loads and saves a whole collection at once.
type Snapshotter[T any] interface {
	Load(ctx context.Context) (map[string]T, error)
	Save(ctx context.Context, items map[string]T) error
}

// File stores the collection as indented JSON at path.
type File[T any] struct {
	path string
}

// NewFile returns a file snapshotter. The parent directory is created on save.
func NewFile[T any](path string) *File[T] {
	return &File[T]{path: path}
}

// Path returns the backing file path.
func (f *File[T]) Path() string {
	return f.path
}

// Load returns an empty map when the file does not exist yet.
func (f *File[T]) Load(_ context.Context) (map[string]T, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]T{}, nil
		}
		return nil, fmt.Errorf("snapshot: read %s: %w", f.path, err)
	}
	return decode[T](data)
}

// Save writes to a temp file in the same directory and renames it into place.
func (f *File[T]) Save(_ context.Context, items map[string]T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

func decode[T any](data []byte) (map[string]T, error) {
	items := map[string]T{}
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return items, nil
}
