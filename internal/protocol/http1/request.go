package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

const (
	// DefaultMaxHeaderBytes bounds the request line plus header block.
	DefaultMaxHeaderBytes = 8192

	// DefaultMaxBodyBytes bounds the request body.
	DefaultMaxBodyBytes = 1 << 20
)

// ErrConnectionClosed reports that the peer closed the connection or the idle
// read timed out. It is the normal end of a keep-alive loop, not a failure.
var ErrConnectionClosed = errors.New("http1: connection closed")

// ProtocolError describes a request that cannot be served. The server
// answers it with 400 Bad Request and closes the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "http1: bad request: " + e.Reason
}

func badRequest(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Limits bounds what ReadRequest accepts.
type Limits struct {
	// MaxHeaderBytes bounds the request line plus all header lines,
	// including line terminators.
	MaxHeaderBytes int

	// MaxBodyBytes bounds Content-Length.
	MaxBodyBytes int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return l
}

// Request is one parsed HTTP request.
type Request struct {
	// Method is the request method exactly as sent (e.g. "GET").
	Method string

	// Target is the raw request target, including any query string.
	Target string

	// Version is the protocol version token (e.g. "HTTP/1.1").
	Version string

	// Headers maps lower-cased header names to values. Repeated headers are
	// joined with ", ".
	Headers map[string]string

	// ContentLength is the declared body length (0 when absent).
	ContentLength int64

	// Body holds exactly ContentLength bytes, or nil.
	Body []byte

	// KeepAlive is true when the Connection header contains "keep-alive".
	KeepAlive bool

	// ClientAddr is the peer address the request arrived from.
	ClientAddr string
}

// Header returns the value of the named header (case-insensitive), or "".
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Convenience accessors for the headers the server acts on.

func (r *Request) Host() string           { return r.Header("Host") }
func (r *Request) UserAgent() string      { return r.Header("User-Agent") }
func (r *Request) ContentType() string    { return r.Header("Content-Type") }
func (r *Request) IfNoneMatch() string    { return r.Header("If-None-Match") }
func (r *Request) AcceptEncoding() string { return r.Header("Accept-Encoding") }

// ReadRequest reads one request from br.
//
// The request line and headers are read line by line until the empty line
// that ends the header block. Then exactly Content-Length bytes of body are
// read. Bytes beyond that stay in br for the next call.
//
// Parameters:
//   - br: buffered reader wrapping the connection, reused across requests
//   - limits: header and body size bounds (zero values use defaults)
//   - clientAddr: recorded on the returned request
//
// Returns:
//   - *Request on success
//   - ErrConnectionClosed when the peer closed the connection or the read
//     deadline expired
//   - *ProtocolError for malformed or oversized requests
//   - any other error for transport failures
func ReadRequest(br *bufio.Reader, limits Limits, clientAddr string) (*Request, error) {
	limits = limits.withDefaults()
	budget := limits.MaxHeaderBytes

	// Tolerate stray CRLFs left between requests.
	var line string
	for {
		var err error
		line, err = readLine(br, &budget)
		if err != nil {
			return nil, err
		}
		if line != "" {
			break
		}
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, badRequest("malformed request line %q", truncate(line, 64))
	}
	if !strings.HasPrefix(fields[2], "HTTP/") {
		return nil, badRequest("unsupported protocol %q", truncate(fields[2], 16))
	}

	req := &Request{
		Method:     fields[0],
		Target:     fields[1],
		Version:    fields[2],
		Headers:    make(map[string]string),
		ClientAddr: clientAddr,
	}

	if err := readHeaders(br, &budget, req.Headers); err != nil {
		return nil, err
	}

	req.KeepAlive = strings.Contains(strings.ToLower(req.Headers["connection"]), "keep-alive")

	if te := req.Headers["transfer-encoding"]; te != "" && !strings.EqualFold(te, "identity") {
		return nil, badRequest("transfer-encoding %q not supported", truncate(te, 32))
	}

	if cl := req.Headers["content-length"]; cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, badRequest("invalid content-length %q", truncate(cl, 32))
		}
		if n > limits.MaxBodyBytes {
			return nil, badRequest("body of %d bytes exceeds limit of %d", n, limits.MaxBodyBytes)
		}
		req.ContentLength = n
	}

	if req.ContentLength > 0 {
		req.Body = make([]byte, req.ContentLength)
		if _, err := io.ReadFull(br, req.Body); err != nil {
			return nil, classifyReadError(err)
		}
	}

	return req, nil
}

func readHeaders(br *bufio.Reader, budget *int, headers map[string]string) error {
	for {
		line, err := readLine(br, budget)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return badRequest("obsolete header line folding")
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return badRequest("malformed header line %q", truncate(line, 64))
		}

		name := strings.ToLower(strings.TrimSpace(line[:colon]))
		if name == "" || strings.ContainsAny(name, " \t") {
			return badRequest("malformed header name %q", truncate(line[:colon], 32))
		}
		value := strings.TrimSpace(line[colon+1:])

		if prev, ok := headers[name]; ok {
			if name == "content-length" && prev != value {
				return badRequest("conflicting content-length values")
			}
			if name != "content-length" {
				headers[name] = prev + ", " + value
			}
			continue
		}
		headers[name] = value
	}
}

// readLine reads one line, stripping the trailing CRLF (or bare LF), and
// charges its raw length against budget.
func readLine(br *bufio.Reader, budget *int) (string, error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		*budget -= len(chunk)
		if *budget < 0 {
			return "", badRequest("header block exceeds limit")
		}

		switch {
		case err == nil:
			if buf == nil {
				return string(trimEOL(chunk)), nil
			}
			buf = append(buf, chunk...)
			return string(trimEOL(buf)), nil
		case errors.Is(err, bufio.ErrBufferFull):
			buf = append(buf, chunk...)
		default:
			return "", classifyReadError(err)
		}
	}
}

func trimEOL(b []byte) []byte {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
		if n > 0 && b[n-1] == '\r' {
			n--
		}
	}
	return b[:n]
}

// classifyReadError maps transport errors onto ErrConnectionClosed when they
// mean the peer is gone or idle.
func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectionClosed
	}
	return fmt.Errorf("http1: read failed: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
