// Package fs serves the document root from a local directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/docroot"
)

// DefaultIndex is written by EnsureDefaultIndex when the root has no index.html.
const DefaultIndex = `<!DOCTYPE html>
<html>
<head>
    <title>DittoServe</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; text-align: center; padding: 50px; }
        h1 { color: #333; }
        p { color: #666; }
    </style>
</head>
<body>
    <h1>DittoServe is running!</h1>
    <p>Place your files in the document root to serve them.</p>
</body>
</html>
`

// FSStore is a docroot.Store backed by a local directory.
//
// Symbolic links inside the root are followed. Names that would resolve
// outside the root are reported as not found.
//
// Thread safety:
// Safe for concurrent use; every call goes straight to the OS.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at root, creating the directory if it
// does not exist.
//
// Parameters:
//   - ctx: Context for cancellation
//   - root: Directory to serve (relative paths are made absolute)
//
// Returns an error if the directory cannot be created or root is not a directory.
func NewFSStore(ctx context.Context, root string) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document root %s: %w", root, err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat document root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", abs)
	}

	return &FSStore{root: abs}, nil
}

// Root returns the absolute directory being served.
func (s *FSStore) Root() string {
	return s.root
}

// Name implements docroot.Store.
func (s *FSStore) Name() string {
	return "filesystem:" + s.root
}

// EnsureDefaultIndex writes DefaultIndex to <root>/index.html if no such
// file exists yet. It reports whether a file was created.
func (s *FSStore) EnsureDefaultIndex() (bool, error) {
	path := filepath.Join(s.root, "index.html")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create default index: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(DefaultIndex); err != nil {
		return false, fmt.Errorf("failed to write default index: %w", err)
	}

	logger.Info("Created default index.html in %s", s.root)
	return true, nil
}

// resolve maps a cleaned store name onto the local filesystem.
func (s *FSStore) resolve(name string) (string, error) {
	cleaned, err := docroot.CleanName(name)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))

	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", docroot.ErrOutsideRoot
	}

	return full, nil
}

// Stat implements docroot.Store.
func (s *FSStore) Stat(ctx context.Context, name string) (docroot.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return docroot.FileInfo{}, err
	}

	full, err := s.resolve(name)
	if err != nil {
		return docroot.FileInfo{}, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	}

	info, err := os.Stat(full)
	if err != nil {
		return docroot.FileInfo{}, mapError(name, err)
	}

	fi := docroot.FileInfo{
		Name:    name,
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !info.IsDir() {
		fi.Size = info.Size()
	}
	return fi, nil
}

// ReadAll implements docroot.Store.
func (s *FSStore) ReadAll(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := s.resolve(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, mapError(name, err)
	}
	return data, nil
}

func mapError(name string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	case errors.Is(err, syscall.EISDIR):
		return fmt.Errorf("%s: %w", name, docroot.ErrIsDirectory)
	default:
		return fmt.Errorf("failed to access %s: %w", name, err)
	}
}
