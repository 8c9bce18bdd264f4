package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps one HTML file per key under dir. A maxAge of zero never expires.
type FileStore struct {
	dir    string
	maxAge time.Duration
}

func NewFileStore(dir string, maxAge time.Duration) (*FileStore, error) {
	if dir == "" {
		dir = "cache"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, maxAge: maxAge}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+".html")
}

// Get reads the cached HTML if it exists and is not expired
func (f *FileStore) Get(_ context.Context, key string) (string, bool) {
	path := f.path(key)

	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if f.expired(info) {
		return "", false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(content), true
}

// Set writes through a temp file so readers never see a partial entry.
func (f *FileStore) Set(_ context.Context, key, value string) error {
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

// Prune removes expired cache files and reports how many were deleted.
func (f *FileStore) Prune() (int, error) {
	removed := 0
	err := filepath.Walk(f.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		if f.expired(info) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (f *FileStore) expired(info os.FileInfo) bool {
	return f.maxAge > 0 && time.Since(info.ModTime()) > f.maxAge
}
