package http1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittoserve/pkg/docroot"
	"github.com/marmos91/dittoserve/pkg/docroot/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testModTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *memory.MemoryStore {
	t.Helper()
	store := memory.NewMemoryStore()
	require.NoError(t, store.Put("/index.html", []byte("<h1>home</h1>"), testModTime))
	require.NoError(t, store.Put("/style.css", []byte("body{}"), testModTime))
	require.NoError(t, store.Put("/docs/index.html", []byte("<h1>docs</h1>"), testModTime))
	require.NoError(t, store.Put("/empty/readme.txt", []byte("no index here"), testModTime))
	require.NoError(t, store.Put("/data.bin", []byte{0, 1, 2}, testModTime))
	return store
}

func newReq(method, target string) *Request {
	return &Request{
		Method:     method,
		Target:     target,
		Version:    "HTTP/1.1",
		Headers:    map[string]string{},
		KeepAlive:  true,
		ClientAddr: "127.0.0.1",
	}
}

func TestBuildServesFile(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "/index.html"))

	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", resp.StatusText)
	assert.Equal(t, "text/html; charset=UTF-8", resp.ContentType)
	assert.Equal(t, "<h1>home</h1>", string(resp.Body))
	assert.Equal(t, WeakETag(13, testModTime), resp.ETag)
	assert.Equal(t, testModTime, resp.LastModified)
	assert.True(t, resp.KeepAlive)
}

func TestBuildRootServesIndex(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "/"))
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>home</h1>", string(resp.Body))

	resp = b.Build(context.Background(), newReq("GET", "/docs/?page=2"))
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>docs</h1>", string(resp.Body))
}

func TestBuildDirectoryRedirect(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "/docs"))
	assert.Equal(t, StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "Moved Permanently", resp.StatusText)
	assert.Equal(t, "/docs/", resp.Location)
	assert.Empty(t, resp.Body)

	resp = b.Build(context.Background(), newReq("GET", "/docs?x=1"))
	assert.Equal(t, "/docs/?x=1", resp.Location)
}

func TestBuildDirectoryWithoutIndex(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "/empty/"))
	assert.Equal(t, StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", string(resp.Body))
}

func TestBuildNotFound(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "/missing.txt"))
	assert.Equal(t, StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", resp.StatusText)
	assert.Equal(t, "Not Found", string(resp.Body))
	assert.Equal(t, "text/plain; charset=UTF-8", resp.ContentType)
}

func TestBuildMethodNotAllowed(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	for _, method := range []string{"POST", "PUT", "DELETE", "get"} {
		resp := b.Build(context.Background(), newReq(method, "/index.html"))
		assert.Equal(t, StatusMethodNotAllowed, resp.StatusCode, method)
		assert.Equal(t, "Method Not Allowed", string(resp.Body), method)
	}
}

func TestBuildRejectsTraversal(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	targets := []string{
		"/../etc/passwd",
		"/docs/../../secret",
		"/%2e%2e/etc/passwd",
		"/a%5c..%5cb",
		"relative.html",
		"*",
	}
	for _, target := range targets {
		resp := b.Build(context.Background(), newReq("GET", target))
		assert.Equal(t, StatusNotFound, resp.StatusCode, target)
	}
}

func TestBuildNormalizesInsideRoot(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "/docs/../style.css"))
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "body{}", string(resp.Body))
}

func TestBuildAbsoluteForm(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "http://example.com/style.css"))
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "text/css; charset=UTF-8", resp.ContentType)

	resp = b.Build(context.Background(), newReq("GET", "http://example.com"))
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>home</h1>", string(resp.Body))
}

func TestBuildHead(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("HEAD", "/index.html"))
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Nil(t, resp.Body)
	assert.Equal(t, "text/html; charset=UTF-8", resp.ContentType)
	assert.NotEmpty(t, resp.ETag)
}

func TestBuildConditional(t *testing.T) {
	b := NewBuilder(newTestStore(t))
	etag := WeakETag(6, testModTime)

	req := newReq("GET", "/style.css")
	req.Headers["if-none-match"] = etag
	resp := b.Build(context.Background(), req)
	assert.Equal(t, StatusNotModified, resp.StatusCode)
	assert.Nil(t, resp.Body)
	assert.Equal(t, etag, resp.ETag)

	req = newReq("GET", "/style.css")
	req.Headers["if-none-match"] = `"other", ` + etag
	resp = b.Build(context.Background(), req)
	assert.Equal(t, StatusNotModified, resp.StatusCode)

	req = newReq("GET", "/style.css")
	req.Headers["if-none-match"] = `W/"stale-0"`
	resp = b.Build(context.Background(), req)
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, "body{}", string(resp.Body))
}

func TestBuildUnknownExtension(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	resp := b.Build(context.Background(), newReq("GET", "/data.bin"))
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, DefaultContentType, resp.ContentType)
}

func TestBuildKeepAliveFollowsRequest(t *testing.T) {
	b := NewBuilder(newTestStore(t))

	req := newReq("GET", "/index.html")
	req.KeepAlive = false
	resp := b.Build(context.Background(), req)
	assert.False(t, resp.KeepAlive)
}

// failingStore stats files successfully but fails every read.
type failingStore struct {
	statErr error
	readErr error
}

func (s *failingStore) Name() string { return "failing" }

func (s *failingStore) Stat(_ context.Context, name string) (docroot.FileInfo, error) {
	if s.statErr != nil {
		return docroot.FileInfo{}, s.statErr
	}
	return docroot.FileInfo{Name: name, Size: 10, ModTime: testModTime}, nil
}

func (s *failingStore) ReadAll(context.Context, string) ([]byte, error) {
	return nil, s.readErr
}

func TestBuildReadFailure(t *testing.T) {
	b := NewBuilder(&failingStore{readErr: errors.New("disk on fire")})

	resp := b.Build(context.Background(), newReq("GET", "/file.txt"))
	assert.Equal(t, StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", string(resp.Body))
}

func TestBuildStatFailure(t *testing.T) {
	b := NewBuilder(&failingStore{statErr: errors.New("backend unavailable")})

	resp := b.Build(context.Background(), newReq("GET", "/file.txt"))
	assert.Equal(t, StatusInternalServerError, resp.StatusCode)
}

func TestWeakETag(t *testing.T) {
	assert.Equal(t, `W/"400-65e1c3c0"`, WeakETag(1024, time.Unix(0x65e1c3c0, 0)))
	assert.Equal(t, `W/"0-0"`, WeakETag(0, time.Unix(0, 0)))
}

func TestRedirectLocation(t *testing.T) {
	assert.Equal(t, "/a/", redirectLocation("/a"))
	assert.Equal(t, "/a/?q=1", redirectLocation("/a?q=1"))
	assert.Equal(t, "/a/", redirectLocation("http://h/a"))
}

func TestBuildDecodesTargetOnce(t *testing.T) {
	store := memory.NewMemoryStore()
	require.NoError(t, store.Put("/100%.txt", []byte("percent"), testModTime))
	require.NoError(t, store.Put("/what?.txt", []byte("question"), testModTime))
	require.NoError(t, store.Put("/%41.txt", []byte("literal escape"), testModTime))
	require.NoError(t, store.Put("/A.txt", []byte("decoded twice"), testModTime))
	b := NewBuilder(store)

	tests := []struct {
		target string
		body   string
	}{
		{"/100%25.txt", "percent"},
		{"/what%3F.txt", "question"},
		{"/%2541.txt", "literal escape"},
		{"/%41.txt", "decoded twice"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp := b.Build(context.Background(), newReq("GET", tt.target))
			require.Equal(t, StatusOK, resp.StatusCode)
			assert.Equal(t, tt.body, string(resp.Body))
		})
	}
}
