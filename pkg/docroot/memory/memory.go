// Package memory provides an in-process document root.
//
// Directories are implicit: a name is a directory when at least one file
// lives beneath it. The root "/" always exists.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittoserve/pkg/docroot"
)

type file struct {
	data    []byte
	modTime time.Time
}

// MemoryStore is a docroot.Store that keeps files in a map.
//
// Thread safety:
// Safe for concurrent use. Put may be called while requests are served.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]file
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]file)}
}

// Name implements docroot.Store.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Put stores data under name with the given modification time.
func (s *MemoryStore) Put(name string, data []byte, modTime time.Time) error {
	cleaned, err := docroot.CleanName(name)
	if err != nil {
		return err
	}
	if cleaned == "/" {
		return fmt.Errorf("cannot store a file at the root: %w", docroot.ErrInvalidPath)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.files[cleaned] = file{data: buf, modTime: modTime}
	s.mu.Unlock()
	return nil
}

// Delete removes name. Missing names are ignored.
func (s *MemoryStore) Delete(name string) {
	cleaned, err := docroot.CleanName(name)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.files, cleaned)
	s.mu.Unlock()
}

// Stat implements docroot.Store.
func (s *MemoryStore) Stat(ctx context.Context, name string) (docroot.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return docroot.FileInfo{}, err
	}

	cleaned, err := docroot.CleanName(name)
	if err != nil {
		return docroot.FileInfo{}, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.files[cleaned]; ok {
		return docroot.FileInfo{Name: name, Size: int64(len(f.data)), ModTime: f.modTime}, nil
	}

	if modTime, ok := s.dirModTimeLocked(cleaned); ok {
		return docroot.FileInfo{Name: name, ModTime: modTime, IsDir: true}, nil
	}

	return docroot.FileInfo{}, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
}

// ReadAll implements docroot.Store.
func (s *MemoryStore) ReadAll(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cleaned, err := docroot.CleanName(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.files[cleaned]; ok {
		out := make([]byte, len(f.data))
		copy(out, f.data)
		return out, nil
	}

	if _, ok := s.dirModTimeLocked(cleaned); ok {
		return nil, fmt.Errorf("%s: %w", name, docroot.ErrIsDirectory)
	}

	return nil, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
}

// dirModTimeLocked reports whether dir has descendants and returns the
// newest descendant modification time. Caller holds s.mu.
func (s *MemoryStore) dirModTimeLocked(dir string) (time.Time, bool) {
	if dir == "/" {
		var newest time.Time
		for _, f := range s.files {
			if f.modTime.After(newest) {
				newest = f.modTime
			}
		}
		return newest, true
	}

	prefix := dir + "/"
	found := false
	var newest time.Time
	for name, f := range s.files {
		if strings.HasPrefix(name, prefix) {
			found = true
			if f.modTime.After(newest) {
				newest = f.modTime
			}
		}
	}
	return newest, found
}
