// Package docroot defines the read-only document root that static files are
// served from.
//
// A Store resolves slash-separated names such as "/css/site.css" against its
// root. Request targets are turned into names with CleanPath; stores clean
// the names they receive with CleanName, which never decodes them again.
//
// Implementations live in subpackages:
//   - docroot/fs: local directory
//   - docroot/memory: in-process map (tests, embedded sites)
//   - docroot/s3: Amazon S3 or S3-compatible bucket
package docroot

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the name does not exist under the root.
	ErrNotFound = errors.New("docroot: not found")

	// ErrIsDirectory is returned by ReadAll when the name is a directory.
	ErrIsDirectory = errors.New("docroot: is a directory")

	// ErrOutsideRoot indicates the name would resolve outside the root.
	ErrOutsideRoot = errors.New("docroot: path escapes document root")

	// ErrInvalidPath indicates the name cannot be interpreted as a path.
	ErrInvalidPath = errors.New("docroot: invalid path")
)

// FileInfo describes an entry of the document root.
type FileInfo struct {
	// Name is the cleaned name the entry was looked up with.
	Name string

	// Size is the content length in bytes (zero for directories).
	Size int64

	// ModTime is the last modification time.
	ModTime time.Time

	// IsDir reports whether the entry is a directory.
	IsDir bool
}

// Store is a read-only document root.
//
// Thread safety:
// Implementations must be safe for concurrent use by multiple workers.
type Store interface {
	// Stat describes name without reading its content.
	//
	// Returns ErrNotFound if name does not exist.
	Stat(ctx context.Context, name string) (FileInfo, error)

	// ReadAll returns the full content of name.
	//
	// Returns ErrNotFound if name does not exist and ErrIsDirectory if it
	// names a directory. Any other error is an I/O failure.
	ReadAll(ctx context.Context, name string) ([]byte, error)

	// Name identifies the store in logs (for example "filesystem:/srv/www").
	Name() string
}
