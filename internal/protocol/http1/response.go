package http1

import (
	"time"
)

const (
	contentTypeTextPlain = "text/plain; charset=UTF-8"

	// RateLimitedBody is the body of every 429 response.
	RateLimitedBody = "Too many requests. Please try again later."
)

// Response is a built but not yet finalized HTTP response.
//
// Cache headers, compression and framing are applied by Finalizer when the
// response is written, so a Response only carries what the builder decided.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// StatusText is the reason phrase.
	StatusText string

	// ContentType is the media type of Body (or of the resource for 304).
	ContentType string

	// Body is the uncompressed payload, nil when there is none.
	Body []byte

	// KeepAlive asks the connection handler to keep the connection open.
	KeepAlive bool

	// ETag is the weak validator of the served file, when known.
	ETag string

	// LastModified is the modification time of the served file, when known.
	LastModified time.Time

	// Location is the redirect target of a 301.
	Location string

	// Request is the request this response answers. It may be nil for
	// responses produced before a request could be parsed.
	Request *Request
}

// NewResponse creates a response with the canonical reason phrase.
func NewResponse(code int, req *Request) *Response {
	resp := &Response{
		StatusCode: code,
		StatusText: StatusText(code),
		Request:    req,
	}
	if req != nil {
		resp.KeepAlive = req.KeepAlive
	}
	return resp
}

// NewTextResponse creates a response whose body is the plain-text reason
// phrase, as used for 404, 405 and 500.
func NewTextResponse(code int, req *Request) *Response {
	resp := NewResponse(code, req)
	resp.ContentType = contentTypeTextPlain
	resp.Body = []byte(resp.StatusText)
	return resp
}

// NewBadRequestResponse answers a request that could not be parsed. The
// connection is always closed afterwards.
func NewBadRequestResponse() *Response {
	resp := NewTextResponse(StatusBadRequest, nil)
	resp.KeepAlive = false
	return resp
}

// NewRateLimitedResponse answers a client over its request budget. The
// connection is always closed afterwards, whatever the client asked for.
func NewRateLimitedResponse(req *Request) *Response {
	resp := NewResponse(StatusTooManyRequests, req)
	resp.ContentType = "text/plain"
	resp.Body = []byte(RateLimitedBody)
	resp.KeepAlive = false
	return resp
}
