package http

import (
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/marmos91/dittoserve/internal/protocol/http1"
)

// HTTPConfig holds configuration parameters for the HTTP server.
//
// Default values (applied by New if zero):
//   - Port: 8080
//   - Backlog: 128
//   - Workers: 16
//   - QueueCapacity: Backlog
//   - KeepAliveTimeout: 5s
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//   - MaxHeaderBytes: 8 KiB
//   - MaxBodyBytes: 1 MiB
//   - ServerName: "DittoServe/1.0"
//   - Gzip.MinSize: 1024 if negative (0 compresses every eligible body)
//   - RateLimit.MaxRequests: 100, RateLimit.Interval: 60s
//   - MetricsLogInterval: 5m
//
// Production recommendations:
//   - Workers: size for the expected number of concurrent keep-alive
//     clients, since a worker is held for the whole life of a connection
//   - QueueCapacity: small multiples of Workers keep latency bounded; excess
//     connections are closed immediately rather than queued
//   - KeepAliveTimeout: a few seconds frees workers held by idle clients
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// Address is the interface to bind. Empty binds all interfaces.
	Address string `mapstructure:"address"`

	// Port is the TCP port to listen on. If 0, defaults to 8080.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Backlog is the default for QueueCapacity. The kernel accept backlog
	// itself is chosen by the Go runtime.
	Backlog int `mapstructure:"backlog" validate:"min=0"`

	// Workers is the number of connections served concurrently.
	Workers int `mapstructure:"workers" validate:"min=0"`

	// QueueCapacity bounds accepted connections waiting for a worker.
	// When full, new connections are closed without a response.
	// 0 means use Backlog.
	QueueCapacity int `mapstructure:"queue_capacity" validate:"min=0"`

	// KeepAliveTimeout bounds the idle wait for the next request on a
	// connection. On expiry the connection is closed.
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout" validate:"min=0"`

	// WriteTimeout bounds the time spent writing one response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to complete during graceful shutdown.
	// After this timeout, remaining connections are forcibly closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MaxHeaderBytes bounds the request line plus header block. Larger
	// requests get 400.
	MaxHeaderBytes int `mapstructure:"max_header_bytes" validate:"min=0"`

	// MaxBodyBytes bounds the request body. Larger requests get 400.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0"`

	// ServerName is sent in the Server header.
	ServerName string `mapstructure:"server_name"`

	// AcceptRate throttles new connections per second (0 = unlimited).
	AcceptRate uint `mapstructure:"accept_rate"`

	// AcceptBurst is the accept throttle burst (0 = AcceptRate).
	AcceptBurst uint `mapstructure:"accept_burst"`

	// Gzip configures response compression.
	Gzip GzipConfig `mapstructure:"gzip"`

	// RateLimit configures the per-client sliding-window limiter.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// MetricsLogInterval is the interval at which to log connection and
	// worker pool statistics. 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`
}

// GzipConfig controls response compression.
type GzipConfig struct {
	// Enabled turns compression on for compressible 200 responses.
	Enabled bool `mapstructure:"enabled"`

	// MinSize is the body size a response must exceed to be compressed.
	// 0 compresses every eligible body.
	MinSize int `mapstructure:"min_size" validate:"min=0"`

	// Level is the gzip level: -2 (Huffman only), -1 (default) or 1-9.
	Level int `mapstructure:"level" validate:"min=-2,max=9"`
}

// RateLimitConfig controls the per-client sliding-window limiter.
type RateLimitConfig struct {
	// Enabled turns per-client limiting on.
	Enabled bool `mapstructure:"enabled"`

	// MaxRequests is the number of requests a client may make per Interval.
	MaxRequests int `mapstructure:"max_requests" validate:"min=0"`

	// Interval is the length of the sliding window.
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	// Note: Enabled field defaults are handled in pkg/config/defaults.go
	// to allow explicit false values from configuration files.

	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.Backlog <= 0 {
		c.Backlog = 128
	}
	if c.Workers <= 0 {
		c.Workers = 16
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = c.Backlog
	}
	if c.KeepAliveTimeout == 0 {
		c.KeepAliveTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = http1.DefaultMaxHeaderBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = http1.DefaultMaxBodyBytes
	}
	if c.ServerName == "" {
		c.ServerName = http1.DefaultServerName
	}
	if c.Gzip.MinSize < 0 {
		c.Gzip.MinSize = http1.DefaultGzipMinSize
	}
	if c.Gzip.Level == 0 {
		c.Gzip.Level = gzip.DefaultCompression
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = 100
	}
	if c.RateLimit.Interval <= 0 {
		c.RateLimit.Interval = 60 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

// validate checks that the configuration is usable.
func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid Workers %d: must be > 0", c.Workers)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("invalid QueueCapacity %d: must be > 0", c.QueueCapacity)
	}
	if c.KeepAliveTimeout < 0 {
		return fmt.Errorf("invalid KeepAliveTimeout %v: must be >= 0", c.KeepAliveTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.Gzip.Level < gzip.HuffmanOnly || c.Gzip.Level > gzip.BestCompression {
		return fmt.Errorf("invalid Gzip.Level %d: must be between %d and %d",
			c.Gzip.Level, gzip.HuffmanOnly, gzip.BestCompression)
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("invalid RateLimit.MaxRequests %d: must be > 0", c.RateLimit.MaxRequests)
	}
	return nil
}
