package http1

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

const (
	// DefaultServerName is sent in the Server header when none is configured.
	DefaultServerName = "DittoServe/1.0"

	// DefaultGzipMinSize is the smallest body worth compressing.
	DefaultGzipMinSize = 1024

	// dateFormat is the RFC 1123 layout HTTP requires, always in GMT.
	dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// FinalizerConfig controls response decoration.
type FinalizerConfig struct {
	// ServerName is the Server header value.
	ServerName string

	// GzipEnabled turns on response compression.
	GzipEnabled bool

	// GzipMinSize is the body size a response must exceed to be compressed.
	GzipMinSize int

	// GzipLevel is the compression level (gzip.DefaultCompression if 0 or invalid).
	GzipLevel int

	// Now overrides the clock used for the Date header.
	Now func() time.Time
}

// Finalizer applies cache and compression policy to built responses and
// writes them out.
//
// Thread safety:
// Safe for concurrent use. Gzip writers are pooled and never shared.
type Finalizer struct {
	serverName  string
	gzipEnabled bool
	gzipMinSize int
	gzipLevel   int
	now         func() time.Time

	gzipWriters sync.Pool
}

// NewFinalizer creates a finalizer from cfg, filling in defaults.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	if cfg.ServerName == "" {
		cfg.ServerName = DefaultServerName
	}
	if cfg.GzipMinSize < 0 {
		cfg.GzipMinSize = DefaultGzipMinSize
	}
	if cfg.GzipLevel == 0 || cfg.GzipLevel < gzip.HuffmanOnly || cfg.GzipLevel > gzip.BestCompression {
		cfg.GzipLevel = gzip.DefaultCompression
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	f := &Finalizer{
		serverName:  cfg.ServerName,
		gzipEnabled: cfg.GzipEnabled,
		gzipMinSize: cfg.GzipMinSize,
		gzipLevel:   cfg.GzipLevel,
		now:         cfg.Now,
	}
	f.gzipWriters.New = func() any {
		// Level was validated above, so NewWriterLevel cannot fail.
		w, _ := gzip.NewWriterLevel(io.Discard, f.gzipLevel)
		return w
	}
	return f
}

// CacheControl returns the Cache-Control policy for a response.
//
// Successful responses are cacheable for a period that depends on the
// content-type family: HTML one hour, CSS and JavaScript one week, images
// thirty days, everything else one day. A 304 repeats the policy of the
// representation it validates. Other statuses are never stored.
func CacheControl(status int, contentType string) string {
	if status != StatusOK && status != StatusNotModified {
		return "no-store"
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return "public, max-age=3600"
	case strings.HasPrefix(ct, "text/css"), strings.HasPrefix(ct, "application/javascript"):
		return "public, max-age=604800"
	case strings.HasPrefix(ct, "image/"):
		return "public, max-age=2592000"
	default:
		return "public, max-age=86400"
	}
}

// IsCompressible reports whether content of this type benefits from gzip.
func IsCompressible(contentType string) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/"),
		strings.HasPrefix(ct, "application/json"),
		strings.HasPrefix(ct, "application/javascript"),
		strings.HasPrefix(ct, "application/x-javascript"),
		strings.HasPrefix(ct, "application/xml"):
		return true
	default:
		return false
	}
}

// shouldCompress applies the compression policy: enabled, status 200, a
// compressible body larger than the threshold, and a client accepting gzip.
func (f *Finalizer) shouldCompress(resp *Response) bool {
	if !f.gzipEnabled || resp.StatusCode != StatusOK || len(resp.Body) <= f.gzipMinSize {
		return false
	}
	if !IsCompressible(resp.ContentType) || resp.Request == nil {
		return false
	}
	return strings.Contains(strings.ToLower(resp.Request.AcceptEncoding()), "gzip")
}

func (f *Finalizer) compress(body []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(body) / 2)

	zw := f.gzipWriters.Get().(*gzip.Writer)
	defer f.gzipWriters.Put(zw)

	zw.Reset(&out)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Encode renders the full response (header block and body) after applying
// cache and compression policy. It returns the header block and the body
// that must follow it; the header block must be released with
// bytebufferpool.Put once written.
func (f *Finalizer) Encode(resp *Response) (*bytebufferpool.ByteBuffer, []byte) {
	body := resp.Body
	encoding := ""

	if f.shouldCompress(resp) {
		if compressed, err := f.compress(body); err == nil {
			body = compressed
			encoding = "gzip"
		}
	}

	buf := bytebufferpool.Get()

	statusText := resp.StatusText
	if statusText == "" {
		statusText = StatusText(resp.StatusCode)
	}

	_, _ = fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", resp.StatusCode, statusText)
	writeHeader(buf, "Server", f.serverName)
	writeHeader(buf, "Date", f.now().UTC().Format(dateFormat))
	contentType := resp.ContentType
	if contentType == "" {
		contentType = contentTypeTextPlain
	}
	writeHeader(buf, "Content-Type", contentType)
	writeHeader(buf, "Content-Length", strconv.Itoa(len(body)))
	writeHeader(buf, "Cache-Control", CacheControl(resp.StatusCode, resp.ContentType))
	if resp.ETag != "" {
		writeHeader(buf, "ETag", resp.ETag)
	}
	if !resp.LastModified.IsZero() {
		writeHeader(buf, "Last-Modified", resp.LastModified.UTC().Format(dateFormat))
	}
	if resp.Location != "" {
		writeHeader(buf, "Location", resp.Location)
	}
	if encoding != "" {
		writeHeader(buf, "Content-Encoding", encoding)
	}
	if f.gzipEnabled && resp.StatusCode == StatusOK && IsCompressible(resp.ContentType) {
		writeHeader(buf, "Vary", "Accept-Encoding")
	}
	if resp.KeepAlive {
		writeHeader(buf, "Connection", "keep-alive")
	} else {
		writeHeader(buf, "Connection", "close")
	}
	_, _ = buf.WriteString("\r\n")

	return buf, body
}

// WriteTo finalizes resp and writes it to w.
//
// Returns the number of bytes written (header block plus body) and any
// write error.
func (f *Finalizer) WriteTo(w io.Writer, resp *Response) (int64, error) {
	header, body := f.Encode(resp)
	defer bytebufferpool.Put(header)

	if len(body) == 0 {
		n, err := w.Write(header.B)
		return int64(n), err
	}

	bufs := net.Buffers{header.B, body}
	return bufs.WriteTo(w)
}

func writeHeader(buf *bytebufferpool.ByteBuffer, name, value string) {
	_, _ = buf.WriteString(name)
	_, _ = buf.WriteString(": ")
	_, _ = buf.WriteString(sanitizeHeaderValue(value))
	_, _ = buf.WriteString("\r\n")
}

// sanitizeHeaderValue drops CR and LF so values cannot split the header block.
func sanitizeHeaderValue(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, v)
}
