package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/adapter"
	"github.com/marmos91/dittoserve/pkg/docroot"
)

// DefaultStopTimeout bounds the Stop calls issued to adapters at shutdown.
const DefaultStopTimeout = 30 * time.Second

// DittoServer manages the lifecycle of multiple protocol adapters that share
// one document root.
//
// Architecture:
// DittoServer orchestrates the protocols that serve files (HTTP/1.1 today)
// as Adapter implementations. All adapters share the same document root, so
// every protocol exposes the same set of files.
//
// Lifecycle:
//  1. Creation: New() with the document root
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Thread safety:
// DittoServer is safe for concurrent use. AddAdapter() may be called concurrently
// with other methods. Serve() may only be called once per server instance.
//
// Example usage:
//
//	srv := server.New(store)
//	httpAdapter, _ := http.New(httpConfig, httpMetrics)
//	_ = srv.AddAdapter(httpAdapter)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	// store is the shared document root for all adapters
	store docroot.Store

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// stopTimeout bounds the Stop() calls at shutdown
	stopTimeout time.Duration

	// mu protects adapters, stopTimeout and served
	mu sync.RWMutex

	// served indicates whether Serve() has been called
	served bool
}

// New creates a new DittoServer serving store.
//
// Returns a configured but not yet started DittoServer. Call AddAdapter() to
// register protocols, then Serve() to start the server.
//
// Panics if store is nil (indicates programmer error).
func New(store docroot.Store) *DittoServer {
	if store == nil {
		panic("document root cannot be nil")
	}

	return &DittoServer{
		store:       store,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout changes the shutdown budget given to adapters. Values <= 0
// restore DefaultStopTimeout.
func (s *DittoServer) SetStopTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultStopTimeout
	}
	s.mu.Lock()
	s.stopTimeout = d
	s.mu.Unlock()
}

// AddAdapter registers a new protocol adapter with the server.
//
// This method injects the shared document root into the adapter and adds it
// to the list of adapters that will be started when Serve() is called.
// Duplicate protocols or port conflicts are detected and return an error.
//
// Panics if:
//   - adapter is nil (programmer error)
//   - Serve() has already been called (server is running)
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	a.SetStore(s.store)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve() has already been called")

// Serve starts all registered adapters and blocks until the context is cancelled,
// an adapter fails, or every adapter has returned.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails:
//   - All adapters receive Stop() calls in reverse registration order
//   - The Stop() calls share one stopTimeout budget
//   - Serve() waits for all adapters to complete before returning
//
// Returns:
//   - nil when every adapter returned on its own without error
//   - context.Canceled (or the context's error) after a signal-driven shutdown
//   - an error if an adapter failed to start or failed while running
//   - ErrAlreadyServed on a second call
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	stopTimeout := s.stopTimeout
	s.mu.Unlock()

	logger.Info("Starting DittoServer with %d adapter(s) serving %s", len(adapters), s.store.Name())

	// Buffered so adapter goroutines never block on report
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
			case ctx.Err() != nil:
				// Errors during shutdown (e.g. force-closed connections)
				// are reported but do not change the outcome.
				logger.Warn("%s adapter shutdown: %v", protocol, err)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters, stopTimeout)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters, stopTimeout)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)

	case <-allDone:
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	<-allDone

	logger.Info("DittoServer stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters initiates graceful shutdown of all adapters in reverse registration order.
//
// Errors are logged and the remaining adapters are still stopped.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stopped", protocol)
		}
	}
}

// Adapters returns a snapshot of currently registered adapters.
//
// The returned slice is a copy and safe to iterate over without holding locks.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
