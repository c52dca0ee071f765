package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Config.Logging.Level") {
		t.Errorf("Expected error to name the field, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidDocRootType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DocRoot.Type = "webdav"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid docroot type")
	}
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero shutdown timeout")
	}
}

func TestValidate_HTTPFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Adapters.HTTP.Port = 70000 }},
		{"negative workers", func(c *Config) { c.Adapters.HTTP.Workers = -1 }},
		{"negative keep-alive", func(c *Config) { c.Adapters.HTTP.KeepAliveTimeout = -1 }},
		{"gzip level too high", func(c *Config) { c.Adapters.HTTP.Gzip.Level = 12 }},
		{"metrics port out of range", func(c *Config) { c.Server.Metrics.Port = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("Expected validation error")
			}
		})
	}
}

func TestValidate_NoAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error with no adapters enabled")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Expected 'at least one adapter' error, got: %v", err)
	}
}

func TestValidate_MetricsPortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Port = cfg.Adapters.HTTP.Port

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for conflicting ports")
	}
	if !strings.Contains(err.Error(), "conflicts") {
		t.Errorf("Expected conflict error, got: %v", err)
	}

	// Same port is fine while metrics are disabled
	cfg.Server.Metrics.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected no error with metrics disabled, got: %v", err)
	}
}

func TestValidate_S3RequiresBucket(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DocRoot.Type = "s3"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for s3 without bucket")
	}

	cfg.DocRoot.S3["bucket"] = "site"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected s3 with bucket to validate, got: %v", err)
	}
}
