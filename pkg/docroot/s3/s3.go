// Package s3 serves the document root from an Amazon S3 (or S3-compatible)
// bucket.
//
// Store names map directly onto object keys below an optional prefix:
//
//	name:   "/css/site.css"
//	prefix: "sites/www/"
//	key:    "sites/www/css/site.css"
//
// S3 has no directories. A name is treated as a directory when no object
// exists at its key but at least one object exists below "<key>/".
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittoserve/pkg/docroot"
)

// Client is the subset of the S3 API used by the store. *s3.Client
// satisfies it.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Metrics receives per-operation observations. A nil S3Metrics disables
// collection.
type S3Metrics interface {
	// ObserveOperation records an S3 call with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes downloaded by an operation.
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	// Client is the configured S3 client.
	Client Client

	// Bucket is the bucket holding the site.
	Bucket string

	// KeyPrefix is prepended to every object key (for example "sites/www/").
	KeyPrefix string

	// Metrics is optional.
	Metrics S3Metrics

	// SkipBucketCheck disables the HeadBucket check at construction.
	SkipBucketCheck bool
}

// S3Store is a read-only docroot.Store backed by S3.
//
// Every Stat and ReadAll is a round trip to S3; there is no local cache.
//
// Thread safety:
// Safe for concurrent use.
type S3Store struct {
	client    Client
	bucket    string
	keyPrefix string
	metrics   S3Metrics
}

// NewS3Store creates an S3-backed store and verifies the bucket is reachable.
//
// Parameters:
//   - ctx: Context for the bucket check
//   - cfg: S3 configuration
//
// Returns an error if configuration is incomplete or the bucket cannot be accessed.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, errors.New("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	prefix := strings.TrimPrefix(cfg.KeyPrefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	if !cfg.SkipBucketCheck {
		if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		}); err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		metrics:   metrics,
	}, nil
}

// Name implements docroot.Store.
func (s *S3Store) Name() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.keyPrefix)
}

// objectKey maps a cleaned store name onto an object key.
func (s *S3Store) objectKey(name string) (string, error) {
	cleaned, err := docroot.CleanName(name)
	if err != nil {
		return "", err
	}
	return s.keyPrefix + strings.TrimPrefix(cleaned, "/"), nil
}

// Stat implements docroot.Store.
func (s *S3Store) Stat(ctx context.Context, name string) (info docroot.FileInfo, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("Stat", time.Since(start), ignoreNotFound(err))
	}()

	if err = ctx.Err(); err != nil {
		return docroot.FileInfo{}, err
	}

	key, kerr := s.objectKey(name)
	if kerr != nil {
		return docroot.FileInfo{}, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	}

	// The root always exists
	if key == s.keyPrefix {
		return docroot.FileInfo{Name: name, IsDir: true}, nil
	}

	head, herr := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if herr == nil {
		return docroot.FileInfo{
			Name:    name,
			Size:    aws.ToInt64(head.ContentLength),
			ModTime: aws.ToTime(head.LastModified),
		}, nil
	}
	if !isNotFound(herr) {
		return docroot.FileInfo{}, fmt.Errorf("failed to head object %s: %w", key, herr)
	}

	isDir, lerr := s.hasChildren(ctx, key)
	if lerr != nil {
		return docroot.FileInfo{}, lerr
	}
	if isDir {
		return docroot.FileInfo{Name: name, IsDir: true}, nil
	}

	return docroot.FileInfo{}, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
}

// ReadAll implements docroot.Store.
func (s *S3Store) ReadAll(ctx context.Context, name string) (data []byte, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("ReadAll", time.Since(start), ignoreNotFound(err))
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	key, kerr := s.objectKey(name)
	if kerr != nil {
		return nil, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	}
	if key == s.keyPrefix {
		return nil, fmt.Errorf("%s: %w", name, docroot.ErrIsDirectory)
	}

	out, gerr := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if gerr != nil {
		if !isNotFound(gerr) {
			return nil, fmt.Errorf("failed to get object %s: %w", key, gerr)
		}
		isDir, lerr := s.hasChildren(ctx, key)
		if lerr != nil {
			return nil, lerr
		}
		if isDir {
			return nil, fmt.Errorf("%s: %w", name, docroot.ErrIsDirectory)
		}
		return nil, fmt.Errorf("%s: %w", name, docroot.ErrNotFound)
	}
	defer func() { _ = out.Body.Close() }()

	data, err = io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	s.metrics.RecordBytes("read", int64(len(data)))
	return data, nil
}

// hasChildren reports whether any object exists below key + "/".
func (s *S3Store) hasChildren(ctx context.Context, key string) (bool, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list objects under %s/: %w", key, err)
	}
	return aws.ToInt32(out.KeyCount) > 0 || len(out.Contents) > 0, nil
}

// isNotFound reports whether err is S3's way of saying the key is absent.
// HeadObject reports NotFound without a typed body; GetObject uses NoSuchKey.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func ignoreNotFound(err error) error {
	if errors.Is(err, docroot.ErrNotFound) {
		return nil
	}
	return err
}
