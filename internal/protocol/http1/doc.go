// Package http1 implements the HTTP/1.1 request-serving pipeline of
// DittoServe: parsing requests off a connection, building static-file
// responses, and finalizing them onto the wire.
//
// Request flow for one exchange:
//
//	ReadRequest(bufio.Reader)      -> *Request | ErrConnectionClosed | *ProtocolError
//	Builder.Build(ctx, *Request)   -> *Response (never fails)
//	Finalizer.WriteTo(w, *Response) -> Cache-Control, ETag, gzip, Content-Length, bytes on the wire
//
// Parsing reads the header block until the blank line that terminates it,
// bounded by Limits.MaxHeaderBytes, then reads exactly Content-Length body
// bytes. Requests spanning several TCP segments are therefore reassembled,
// and the bytes of a following pipelined request stay buffered for the next
// call.
//
// The finalizer guarantees that the Content-Length header always equals the
// number of body bytes written, compressed or not.
package http1
