package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/dittoserve/pkg/adapter/http"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific options are defaulted only where a sample file needs them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDocRootDefaults(&cfg.DocRoot)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	// Metrics stay disabled unless explicitly enabled
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyDocRootDefaults sets document root defaults.
func applyDocRootDefaults(cfg *DocRootConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "./www"
	}
	if _, ok := cfg.Filesystem["create_default_index"]; !ok {
		cfg.Filesystem["create_default_index"] = true
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the HTTP adapter when it looks unconfigured (no port given) so
	// a config-less start passes validation. An explicit enabled: false
	// alongside a port is preserved.
	if !cfg.HTTP.Enabled && cfg.HTTP.Port == 0 {
		cfg.HTTP.Enabled = true
	}

	applyHTTPDefaults(&cfg.HTTP)
}

// defaultGzipMinSize is applied by the loader only when gzip.min_size is
// absent, so an explicit 0 stays 0.
const defaultGzipMinSize = 1024

// applyHTTPDefaults sets HTTP adapter defaults.
//
// QueueCapacity is left at 0 so that it keeps following Backlog inside the
// adapter.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Backlog == 0 {
		cfg.Backlog = 128
	}
	if cfg.Workers == 0 {
		cfg.Workers = 16
	}
	if cfg.KeepAliveTimeout == 0 {
		cfg.KeepAliveTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = 8192
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "DittoServe/1.0"
	}
	if cfg.Gzip.Level == 0 {
		cfg.Gzip.Level = -1
	}
	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = 100
	}
	if cfg.RateLimit.Interval == 0 {
		cfg.RateLimit.Interval = 60 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		DocRoot: DocRootConfig{
			Filesystem: make(map[string]any),
			Memory:     make(map[string]any),
			S3:         make(map[string]any),
		},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled: true,
				Gzip:    httpadapter.GzipConfig{MinSize: defaultGzipMinSize},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
