package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

type fileStorage struct {
	config FileConfig
}

type FileConfig struct {
	Directory string
}

// NewFileStorage creates a new file storage backend. Relative keys and
// prefixes resolve against Directory; absolute ones are used as is.
func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	if f.Directory == "" {
		f.Directory = "."
	}

	return &fileStorage{
		config: f,
	}, nil
}

func (a *fileStorage) path(key string) string {
	if filepath.IsAbs(key) {
		return filepath.Clean(key)
	}
	return filepath.Join(a.config.Directory, key)
}

func (a *fileStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	filePath := a.path(key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filePath, nil
}

func (a *fileStorage) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(url)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

func (a *fileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	directory := a.path(prefix)

	entries, err := os.ReadDir(directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", directory, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		urls = append(urls, filepath.Join(directory, entry.Name()))
	}
	sort.Strings(urls)

	return urls, nil
}

func (a *fileStorage) Delete(ctx context.Context, url string) error {
	if err := os.Remove(url); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		return fmt.Errorf("failed to remove file: %w", err)
	}

	return nil
}
