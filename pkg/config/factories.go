package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/docroot"
	docrootFs "github.com/marmos91/dittoserve/pkg/docroot/fs"
	docrootMemory "github.com/marmos91/dittoserve/pkg/docroot/memory"
	docrootS3 "github.com/marmos91/dittoserve/pkg/docroot/s3"
	"github.com/marmos91/dittoserve/pkg/metrics"
	"github.com/mitchellh/mapstructure"
)

// CreateDocumentStore creates the document root based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/docroot/fs (local directory)
//   - "memory": Uses pkg/docroot/memory (in-process, seeded from config)
//   - "s3": Uses pkg/docroot/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Document root configuration
//
// Returns:
//   - docroot.Store: Initialized, read-only document root
//   - error: Configuration or initialization error
func CreateDocumentStore(ctx context.Context, cfg *DocRootConfig) (docroot.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemStore(ctx, cfg.Filesystem)
	case "memory":
		return createMemoryStore(ctx, cfg.Memory)
	case "s3":
		return createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown document root type: %q", cfg.Type)
	}
}

// createFilesystemStore creates a directory-backed document root.
func createFilesystemStore(ctx context.Context, options map[string]any) (docroot.Store, error) {
	type FilesystemStoreConfig struct {
		Path               string `mapstructure:"path"`
		CreateDefaultIndex bool   `mapstructure:"create_default_index"`
	}

	var storeCfg FilesystemStoreConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true, // env overrides arrive as strings
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem document root config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem document root: path is required")
	}

	store, err := docrootFs.NewFSStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem document root: %w", err)
	}

	if storeCfg.CreateDefaultIndex {
		if _, err := store.EnsureDefaultIndex(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// createMemoryStore creates an in-process document root.
//
// The "files" option maps request paths to contents. Without it the store
// holds only the default index page.
func createMemoryStore(ctx context.Context, options map[string]any) (docroot.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type MemoryStoreConfig struct {
		Files map[string]string `mapstructure:"files"`
	}

	var storeCfg MemoryStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory document root config: %w", err)
	}

	files := storeCfg.Files
	if len(files) == 0 {
		files = map[string]string{"/index.html": docrootFs.DefaultIndex}
	}

	store := docrootMemory.NewMemoryStore()
	now := time.Now()
	for name, body := range files {
		if err := store.Put(name, []byte(body), now); err != nil {
			return nil, fmt.Errorf("memory document root: invalid file %q: %w", name, err)
		}
	}

	return store, nil
}

// createS3Store creates an S3-backed document root.
func createS3Store(ctx context.Context, options map[string]any) (docroot.Store, error) {
	type S3StoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		ForcePathStyle  bool   `mapstructure:"force_path_style"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3StoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 document root config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 document root: bucket is required")
	}

	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 document root: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
		if storeCfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Document Root
	// ========================================================================

	store, err := docrootS3.NewS3Store(ctx, docrootS3.S3StoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		Metrics:   metrics.NewS3Metrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 document root: %w", err)
	}

	logger.Info("S3 document root initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
