package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/protocol/http1"
	"github.com/marmos91/dittoserve/internal/workerpool"
)

// HTTPConnection serves the requests of one client connection.
type HTTPConnection struct {
	server *HTTPAdapter
	task   *workerpool.Task
	reader *bufio.Reader

	// clientIP keys the rate limiter; the port is dropped so every
	// connection of a client shares one budget.
	clientIP string

	// idle is set while the connection waits for a request after having
	// served at least one. Only idle connections are woken at shutdown.
	idle atomic.Bool
}

// NewHTTPConnection wraps a dequeued task.
func NewHTTPConnection(server *HTTPAdapter, task *workerpool.Task) *HTTPConnection {
	return &HTTPConnection{
		server:   server,
		task:     task,
		reader:   bufio.NewReader(task.Conn),
		clientIP: clientIP(task.RemoteAddr),
	}
}

// Serve runs the request loop: read a request, check the client's rate
// budget, build and write the response, and repeat while keep-alive holds.
//
// The connection is closed when:
//   - the client closes it or stays idle past KeepAliveTimeout
//   - a request is malformed (after answering 400)
//   - the client is rate limited (after answering 429)
//   - a response is sent without keep-alive
//   - shutdown started and the connection is between requests
//   - a write fails
//
// Panics are recovered so a misbehaving connection never takes down its
// worker.
func (c *HTTPConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in HTTP connection %s from %s: %v",
				shortID(c.task.ID), c.task.RemoteAddr, r)
		}
		_ = c.task.Close()
	}()

	for served := 0; ; served++ {
		if err := c.task.Conn.SetReadDeadline(time.Now().Add(c.server.config.KeepAliveTimeout)); err != nil {
			logger.Debug("Failed to set read deadline for %s: %v", c.task.RemoteAddr, err)
			return
		}

		// The first request of a dispatched connection is always served.
		// Later ones are not once shutdown has begun. Marking idle before
		// checking pairs with wakeIfIdle so no waiter is missed.
		if served > 0 {
			c.idle.Store(true)
			if c.server.isShuttingDown() {
				logger.Debug("HTTP connection %s closed for shutdown", shortID(c.task.ID))
				return
			}
		}

		req, err := http1.ReadRequest(c.reader, c.server.limits, c.clientIP)
		c.idle.Store(false)
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.serveRequest(ctx, req) {
			return
		}
	}
}

// serveRequest answers one request and reports whether the connection
// stays open.
func (c *HTTPConnection) serveRequest(ctx context.Context, req *http1.Request) bool {
	start := time.Now()

	// Checked after parsing: malformed requests get 400 and never spend budget.
	if c.server.limiter.IsLimited(c.clientIP) {
		c.server.metrics.RecordRateLimited()
		logger.Info("Rate limit exceeded for %s (%s %s)", c.clientIP, req.Method, req.Target)
		resp := http1.NewRateLimitedResponse(req)
		_ = c.writeResponse(resp, start)
		return false
	}

	resp := c.server.builder.Build(ctx, req)
	if c.server.isShuttingDown() {
		resp.KeepAlive = false
	}

	if err := c.writeResponse(resp, start); err != nil {
		logger.Debug("Failed to write response to %s: %v", c.task.RemoteAddr, err)
		return false
	}
	return resp.KeepAlive
}

// handleReadError answers what can be answered and logs the rest.
func (c *HTTPConnection) handleReadError(err error) {
	var protoErr *http1.ProtocolError
	switch {
	case errors.Is(err, http1.ErrConnectionClosed):
		logger.Debug("HTTP connection %s from %s ended by peer or idle timeout",
			shortID(c.task.ID), c.task.RemoteAddr)
	case errors.As(err, &protoErr):
		logger.Debug("Bad request from %s: %s", c.task.RemoteAddr, protoErr.Reason)
		_ = c.writeResponse(http1.NewBadRequestResponse(), time.Now())
	default:
		logger.Debug("Error reading request from %s: %v", c.task.RemoteAddr, err)
	}
}

// writeResponse finalizes and transmits resp within WriteTimeout.
func (c *HTTPConnection) writeResponse(resp *http1.Response, start time.Time) error {
	if err := c.task.Conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
		return err
	}

	n, err := c.server.finalizer.WriteTo(c.task.Conn, resp)
	c.server.metrics.RecordBytesSent(n)

	method := "-"
	target := "-"
	if resp.Request != nil {
		method = resp.Request.Method
		target = resp.Request.Target
	}
	duration := time.Since(start)
	c.server.metrics.RecordRequest(method, resp.StatusCode, duration)
	logger.Debug("%s %s %s -> %d (%d bytes, %v) [%s]",
		c.task.RemoteAddr, method, target, resp.StatusCode, n, duration, shortID(c.task.ID))

	return err
}

// wakeIfIdle interrupts a pending read so the loop observes shutdown.
// Returns true if the connection was idle.
func (c *HTTPConnection) wakeIfIdle() bool {
	if !c.idle.Load() {
		return false
	}
	_ = c.task.Conn.SetReadDeadline(time.Now())
	return true
}

// clientIP strips the port from a remote address.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
