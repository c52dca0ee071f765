package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/protocol/http1"
	"github.com/marmos91/dittoserve/internal/ratelimiter"
	"github.com/marmos91/dittoserve/internal/workerpool"
	"github.com/marmos91/dittoserve/pkg/docroot"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// HTTPAdapter implements the adapter.Adapter interface for HTTP/1.1.
//
// Architecture:
// HTTPAdapter is the acceptor. It owns the TCP listener and hands each
// accepted connection to a bounded worker pool. When the pool queue is full
// the connection is closed at once without a response (backpressure). A
// worker runs an HTTPConnection, which serves requests on that connection
// until it closes, times out or stops asking for keep-alive.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Connections idle between requests are woken and closed; connections
//     with a request in progress finish it and answer with Connection: close
//  4. The worker pool drains: queued connections are closed, workers exit
//  5. Connections still open after ShutdownTimeout are force-closed
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses sync.Once
// to ensure idempotent behavior even if Stop() is called multiple times.
type HTTPAdapter struct {
	config HTTPConfig

	// listener is closed during shutdown to stop accepting new connections.
	// Guarded by mu since Stop() may race with ServeListener().
	mu       sync.Mutex
	listener net.Listener

	// boundPort is the port actually bound, which differs from config.Port
	// when listening on port 0
	boundPort atomic.Int32

	store     docroot.Store
	builder   *http1.Builder
	finalizer *http1.Finalizer
	limits    http1.Limits

	// limiter is the per-client sliding-window rate limiter, owned by this
	// adapter instance
	limiter *ratelimiter.SlidingWindow

	// acceptThrottle bounds the accept rate (unlimited unless configured)
	acceptThrottle *ratelimiter.TokenBucket

	pool *workerpool.Pool

	metrics metrics.HTTPMetrics

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown is closed by initiateShutdown()
	shutdown chan struct{}

	// started is set when Serve begins; stopped is closed when it returns
	started atomic.Bool
	stopped chan struct{}

	// connCount tracks the current number of connections owned by workers
	connCount atomic.Int32

	// requestCtx is passed to document store calls. It is only cancelled
	// when connections are force-closed, so in-flight requests complete
	// during a graceful shutdown.
	requestCtx     context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps task ID to *HTTPConnection for idle wake-up
	// and forced closure
	activeConnections sync.Map
}

// New creates a new HTTPAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetStore() to inject the
// document root, then Serve() or ServeListener() to start accepting
// connections.
//
// Parameters:
//   - config: Server configuration (port, pool sizing, timeouts, policies)
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//
// Returns an error if the configuration is invalid after defaults are applied.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) (*HTTPAdapter, error) {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid HTTP config: %w", err)
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	requestCtx, cancelRequests := context.WithCancel(context.Background())

	return &HTTPAdapter{
		config: config,
		finalizer: http1.NewFinalizer(http1.FinalizerConfig{
			ServerName:  config.ServerName,
			GzipEnabled: config.Gzip.Enabled,
			GzipMinSize: config.Gzip.MinSize,
			GzipLevel:   config.Gzip.Level,
		}),
		limits: http1.Limits{
			MaxHeaderBytes: config.MaxHeaderBytes,
			MaxBodyBytes:   config.MaxBodyBytes,
		},
		limiter: ratelimiter.NewSlidingWindow(ratelimiter.SlidingWindowConfig{
			Enabled:     config.RateLimit.Enabled,
			MaxRequests: config.RateLimit.MaxRequests,
			Interval:    config.RateLimit.Interval,
		}),
		acceptThrottle: ratelimiter.NewTokenBucket(config.AcceptRate, config.AcceptBurst),
		metrics:        httpMetrics,
		shutdown:       make(chan struct{}),
		stopped:        make(chan struct{}),
		requestCtx:     requestCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// SetStore injects the document root.
//
// Thread safety:
// Called exactly once before Serve(), no synchronization needed.
func (s *HTTPAdapter) SetStore(store docroot.Store) {
	s.store = store
	s.builder = http1.NewBuilder(store)
	logger.Debug("HTTP document root configured: %s", store.Name())
}

// Serve listens on the configured address and serves until ctx is cancelled.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener cannot be created, no store was set, or
//     connections had to be force-closed
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves connections accepted from ln until ctx is cancelled
// or Stop() is called. The adapter takes ownership of ln and closes it on
// shutdown.
func (s *HTTPAdapter) ServeListener(ctx context.Context, ln net.Listener) error {
	if s.builder == nil {
		_ = ln.Close()
		return errors.New("HTTP adapter has no document root: SetStore must be called before Serve")
	}
	if !s.started.CompareAndSwap(false, true) {
		_ = ln.Close()
		return errors.New("HTTP adapter already serving")
	}
	defer close(s.stopped)

	pool, err := workerpool.New(s.config.Workers, s.config.QueueCapacity, workerpool.HandlerFunc(s.handleTask))
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to create HTTP worker pool: %w", err)
	}
	s.pool = pool

	s.mu.Lock()
	s.listener = ln
	if s.isShuttingDown() {
		// Stop() ran before the listener was registered.
		_ = ln.Close()
	}
	s.mu.Unlock()

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}

	logger.Info("HTTP server listening on %s (document root: %s)", ln.Addr(), s.store.Name())
	logger.Debug("HTTP config: workers=%d queue_capacity=%d keep_alive_timeout=%v gzip=%v rate_limit=%v",
		s.config.Workers, s.config.QueueCapacity, s.config.KeepAliveTimeout,
		s.config.Gzip.Enabled, s.config.RateLimit.Enabled)

	// acceptCtx ends with shutdown and unblocks a throttled accept loop.
	acceptCtx, cancelAccept := context.WithCancel(context.Background())
	defer cancelAccept()

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
		cancelAccept()
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if !s.acceptThrottle.Unlimited() {
			if err := s.acceptThrottle.Wait(acceptCtx); err != nil {
				s.initiateShutdown()
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting HTTP connection: %v", err)
				if errors.Is(err, net.ErrClosed) {
					s.initiateShutdown()
					return s.gracefulShutdown()
				}
				continue
			}
		}

		s.metrics.RecordConnectionAccepted()
		s.dispatch(workerpool.NewTask(tcpConn))
	}
}

// dispatch queues task for a worker or closes it under backpressure.
func (s *HTTPAdapter) dispatch(task *workerpool.Task) {
	err := s.pool.Submit(task)
	if err == nil {
		stats := s.pool.Stats()
		s.metrics.SetWorkerPool(stats.Busy, stats.Queued)
		return
	}

	reason := "queue_full"
	if errors.Is(err, workerpool.ErrPoolClosed) {
		reason = "shutdown"
	}
	logger.Debug("HTTP connection from %s rejected: %v", task.RemoteAddr, err)
	s.metrics.RecordConnectionRejected(reason)
	s.metrics.RecordConnectionClosed()
	_ = task.Close()
}

// handleTask is the worker pool handler: it serves one connection to
// completion.
func (s *HTTPAdapter) handleTask(task *workerpool.Task) {
	conn := NewHTTPConnection(s, task)

	s.activeConnections.Store(task.ID, conn)
	current := s.connCount.Add(1)
	s.metrics.SetActiveConnections(current)
	logger.Debug("HTTP connection %s from %s started (active: %d, queued for %v)",
		shortID(task.ID), task.RemoteAddr, current, time.Since(task.AcceptedAt))

	defer func() {
		s.activeConnections.Delete(task.ID)
		current := s.connCount.Add(-1)
		s.metrics.SetActiveConnections(current)
		s.metrics.RecordConnectionClosed()
		logger.Debug("HTTP connection %s from %s closed (active: %d)",
			shortID(task.ID), task.RemoteAddr, current)
	}()

	conn.Serve(s.requestCtx)
}

// isShuttingDown reports whether shutdown has started.
func (s *HTTPAdapter) isShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (accept loop and connection loops observe it)
//  2. Close listener (stops accepting new connections)
//  3. Wake connections blocked waiting for their next request
//
// Thread safety:
// Safe to call multiple times and from multiple goroutines.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")

		close(s.shutdown)

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing HTTP listener: %v", err)
			}
		}
		s.mu.Unlock()

		s.wakeIdleConnections()
	})
}

// wakeIdleConnections interrupts the read of every connection waiting for
// its next request so it observes shutdown and closes.
func (s *HTTPAdapter) wakeIdleConnections() {
	woken := 0
	s.activeConnections.Range(func(_, value any) bool {
		if value.(*HTTPConnection).wakeIfIdle() {
			woken++
		}
		return true
	})
	if woken > 0 {
		logger.Debug("Woke %d idle HTTP connection(s) for shutdown", woken)
	}
}

// gracefulShutdown drains the worker pool within ShutdownTimeout.
//
// Returns:
//   - nil if all connections completed gracefully
//   - error if shutdown timeout exceeded (connections were force-closed)
func (s *HTTPAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.pool.Shutdown()
		close(done)
	}()

	timer := time.NewTimer(s.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.cancelRequests()
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil

	case <-timer.C:
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()
		return fmt.Errorf("HTTP shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all active connections and cancels store
// calls still in progress.
func (s *HTTPAdapter) forceCloseConnections() {
	logger.Info("Force-closing active HTTP connections")

	s.cancelRequests()

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		conn := value.(*HTTPConnection)
		if err := conn.task.Close(); err != nil {
			logger.Debug("Error force-closing HTTP connection %s: %v", shortID(key.(string)), err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d HTTP connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the HTTP server and waits for Serve
// to return or ctx to be done, whichever comes first. When ctx ends first,
// remaining connections are force-closed.
//
// Thread safety:
// Safe to call concurrently from multiple goroutines.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// logMetrics periodically logs connection and worker pool statistics.
func (s *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-ticker.C:
			stats := s.pool.Stats()
			s.metrics.SetWorkerPool(stats.Busy, stats.Queued)
			logger.Info("HTTP metrics: active_connections=%d busy_workers=%d/%d queued=%d/%d",
				s.connCount.Load(), stats.Busy, stats.Workers, stats.Queued, stats.Capacity)
		}
	}
}

// GetActiveConnections returns the current number of connections being
// served by workers.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the listener address, or nil before Serve.
func (s *HTTPAdapter) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the TCP port the HTTP server is listening on. Before Serve
// it returns the configured port.
func (s *HTTPAdapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "HTTP" as the protocol identifier.
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}

// shortID trims a task UUID for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
