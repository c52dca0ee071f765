package adapter

import (
	"context"

	"github.com/marmos91/dittoserve/pkg/docroot"
)

// Adapter represents a protocol-specific server adapter that can be managed by DittoServer.
//
// Each adapter implements a specific serving protocol (e.g., HTTP/1.1) and
// provides a unified interface for lifecycle management. All adapters serve
// the same document root.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Store injection: SetStore() provides the shared document root
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetStore() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active requests to complete (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, DittoServer treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - context.Canceled if cancelled via context
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// SetStore injects the document root the adapter serves files from.
	//
	// Called exactly once by DittoServer before Serve().
	SetStore(store docroot.Store)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must be idempotent and safe to call concurrently with
	// Serve(). When ctx is cancelled, remaining connections are force-closed.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// Examples: "HTTP"
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Returns 0 if the adapter has not yet started.
	Port() int
}
