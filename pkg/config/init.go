package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoServe Configuration File
#
# Every key can be overridden with an environment variable built from the
# DITTOSERVE_ prefix and the upper-cased key path, for example
# DITTOSERVE_ADAPTERS_HTTP_PORT=9000.

`

// InitConfig writes a sample configuration file to the default location.
//
// Returns the path written. Fails if the file exists and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// field is one commented key of the generated file.
type field struct {
	key     string
	comment string
	value   any
}

// generateYAMLWithComments renders cfg as YAML with a comment above every
// key. Durations are written in their string form so the file stays
// readable and round-trips through Load.
func generateYAMLWithComments(cfg *Config) (string, error) {
	h := cfg.Adapters.HTTP

	root, err := mapping(
		field{"logging", "Log output", []field{
			{"level", "DEBUG, INFO, WARN or ERROR", cfg.Logging.Level},
			{"format", "text or json", cfg.Logging.Format},
			{"output", "stdout, stderr or a file path", cfg.Logging.Output},
		}},
		field{"server", "Server-wide settings", []field{
			{"shutdown_timeout", "Budget for stopping all adapters", cfg.Server.ShutdownTimeout.String()},
			{"metrics", "Prometheus endpoint (/metrics and /healthz)", []field{
				{"enabled", "", cfg.Server.Metrics.Enabled},
				{"port", "", cfg.Server.Metrics.Port},
			}},
		}},
		field{"docroot", "Where served files come from", []field{
			{"type", "filesystem, memory or s3", cfg.DocRoot.Type},
			{"filesystem", "Used when type is filesystem", []field{
				{"path", "Directory to serve", cfg.DocRoot.Filesystem["path"]},
				{"create_default_index", "Create the directory and an index.html when missing", cfg.DocRoot.Filesystem["create_default_index"]},
			}},
			{"s3", "Used when type is s3", []field{
				{"region", "", "us-east-1"},
				{"bucket", "", ""},
				{"key_prefix", "Prefix prepended to every object key", ""},
				{"endpoint", "Custom endpoint for S3-compatible services", ""},
			}},
		}},
		field{"adapters", "Protocol adapters", []field{
			{"http", "HTTP/1.1 static file server", []field{
				{"enabled", "", h.Enabled},
				{"address", "Interface to bind (empty for all)", h.Address},
				{"port", "", h.Port},
				{"backlog", "Default queue capacity", h.Backlog},
				{"workers", "Connections served concurrently", h.Workers},
				{"queue_capacity", "Connections waiting for a worker (0 uses backlog)", h.QueueCapacity},
				{"keep_alive_timeout", "Idle wait for the next request", h.KeepAliveTimeout.String()},
				{"write_timeout", "", h.WriteTimeout.String()},
				{"shutdown_timeout", "Wait for active connections before force-closing", h.ShutdownTimeout.String()},
				{"max_header_bytes", "", h.MaxHeaderBytes},
				{"max_body_bytes", "", h.MaxBodyBytes},
				{"server_name", "Value of the Server header", h.ServerName},
				{"accept_rate", "New connections per second (0 = unlimited)", h.AcceptRate},
				{"accept_burst", "", h.AcceptBurst},
				{"gzip", "Response compression", []field{
					{"enabled", "", h.Gzip.Enabled},
					{"min_size", "Bodies at or below this size are sent as is (0 compresses all)", h.Gzip.MinSize},
					{"level", "-2 (Huffman only), -1 (default) or 1-9", h.Gzip.Level},
				}},
				{"rate_limit", "Per-client sliding window", []field{
					{"enabled", "", h.RateLimit.Enabled},
					{"max_requests", "", h.RateLimit.MaxRequests},
					{"interval", "", h.RateLimit.Interval.String()},
				}},
				{"metrics_log_interval", "Periodic stats logging (0 disables)", h.MetricsLogInterval.String()},
			}},
		}},
	)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return buf.String(), nil
}

// mapping builds an ordered YAML mapping node. Values that are []field
// become nested mappings.
func mapping(fields ...field) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for _, f := range fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: f.key}
		if f.comment != "" {
			key.HeadComment = "# " + f.comment
		}

		var value *yaml.Node
		if nested, ok := f.value.([]field); ok {
			n, err := mapping(nested...)
			if err != nil {
				return nil, err
			}
			value = n
		} else {
			value = &yaml.Node{}
			if err := value.Encode(f.value); err != nil {
				return nil, fmt.Errorf("failed to encode %s: %w", f.key, err)
			}
		}

		node.Content = append(node.Content, key, value)
	}

	return node, nil
}
