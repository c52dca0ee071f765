package http1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/docroot"
)

// IndexFile is served for directory requests ending in "/".
const IndexFile = "index.html"

// Builder turns a parsed request into a static-file response.
//
// Thread safety:
// A Builder holds no mutable state and is shared by all workers.
type Builder struct {
	store docroot.Store
}

// NewBuilder creates a builder serving files from store.
func NewBuilder(store docroot.Store) *Builder {
	return &Builder{store: store}
}

// WeakETag computes the validator of a file from its size and modification
// time (second precision): W/"<size hex>-<mtime hex>".
func WeakETag(size int64, modTime time.Time) string {
	return fmt.Sprintf(`W/"%x-%x"`, size, modTime.Unix())
}

// Build produces the response for req. It never fails: every error path
// resolves to an error-status response.
//
// Resolution order:
//  1. Methods other than GET and HEAD get 405.
//  2. The target is normalized; targets escaping the root get 404.
//  3. Missing names get 404.
//  4. Directories without a trailing slash get 301 to the slashed target;
//     with one, their index.html is served (404 if absent).
//  5. If-None-Match containing the current ETag gets 304 without reading.
//  6. The file is read; HEAD discards the content. Read failures get 500.
func (b *Builder) Build(ctx context.Context, req *Request) *Response {
	if req.Method != "GET" && req.Method != "HEAD" {
		return NewTextResponse(StatusMethodNotAllowed, req)
	}

	target := requestPath(req.Target)
	if !strings.HasPrefix(target, "/") {
		return NewTextResponse(StatusNotFound, req)
	}

	name, err := docroot.CleanPath(target)
	if err != nil {
		logger.Debug("Rejected request target %q from %s: %v", req.Target, req.ClientAddr, err)
		return NewTextResponse(StatusNotFound, req)
	}

	info, err := b.store.Stat(ctx, name)
	if err != nil {
		return b.lookupFailure(req, name, err)
	}

	if info.IsDir {
		if !docroot.HasTrailingSlash(target) {
			resp := NewResponse(StatusMovedPermanently, req)
			resp.Location = redirectLocation(req.Target)
			return resp
		}

		name = docroot.Join(name, IndexFile)
		info, err = b.store.Stat(ctx, name)
		if err != nil {
			return b.lookupFailure(req, name, err)
		}
		if info.IsDir {
			return NewTextResponse(StatusNotFound, req)
		}
	}

	contentType := ContentTypeFor(name)
	etag := WeakETag(info.Size, info.ModTime)

	if inm := req.IfNoneMatch(); inm != "" && strings.Contains(inm, etag) {
		resp := NewResponse(StatusNotModified, req)
		resp.ContentType = contentType
		resp.ETag = etag
		resp.LastModified = info.ModTime
		return resp
	}

	data, err := b.store.ReadAll(ctx, name)
	if err != nil {
		logger.Error("Failed to read %s from %s: %v", name, b.store.Name(), err)
		return NewTextResponse(StatusInternalServerError, req)
	}

	resp := NewResponse(StatusOK, req)
	resp.ContentType = contentType
	resp.ETag = etag
	resp.LastModified = info.ModTime
	if req.Method == "GET" {
		resp.Body = data
	}
	return resp
}

func (b *Builder) lookupFailure(req *Request, name string, err error) *Response {
	if errors.Is(err, docroot.ErrNotFound) {
		return NewTextResponse(StatusNotFound, req)
	}
	logger.Error("Failed to stat %s in %s: %v", name, b.store.Name(), err)
	return NewTextResponse(StatusInternalServerError, req)
}

// requestPath reduces an absolute-form target ("http://host/p") to its path.
func requestPath(target string) string {
	lower := strings.ToLower(target)
	for _, scheme := range []string{"http://", "https://"} {
		if strings.HasPrefix(lower, scheme) {
			rest := target[len(scheme):]
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				return rest[i:]
			}
			return "/"
		}
	}
	return target
}

// redirectLocation appends "/" to the path part of target, keeping any query.
func redirectLocation(target string) string {
	p := requestPath(target)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i] + "/" + p[i:]
	}
	return p + "/"
}
