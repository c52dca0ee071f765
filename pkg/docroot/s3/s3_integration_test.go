//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoserve/pkg/docroot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupLocalstack creates an S3 client and a fresh bucket on Localstack
// (or any S3-compatible endpoint in LOCALSTACK_ENDPOINT). The bucket and
// its objects are removed when the test ends.
//
// To run:
//
//	docker run --rm -p 4566:4566 localstack/localstack
//	go test -tags=integration ./pkg/docroot/s3/...
func setupLocalstack(t *testing.T) (*s3.Client, string) {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	bucket := fmt.Sprintf("dittoserve-it-%d", time.Now().UnixNano())
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err, "is Localstack running at %s?", endpoint)

	t.Cleanup(func() {
		list, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
		if list != nil {
			for _, obj := range list.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	})

	return client, bucket
}

func putObject(t *testing.T, client *s3.Client, bucket, key, body string) {
	t.Helper()
	_, err := client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte(body)),
	})
	require.NoError(t, err)
}

func TestS3Store_Integration(t *testing.T) {
	ctx := context.Background()
	client, bucket := setupLocalstack(t)

	putObject(t, client, bucket, "site/index.html", "<h1>home</h1>")
	putObject(t, client, bucket, "site/docs/index.html", "<h1>docs</h1>")
	putObject(t, client, bucket, "other/secret.txt", "not served")

	store, err := NewS3Store(ctx, S3StoreConfig{
		Client:    client,
		Bucket:    bucket,
		KeyPrefix: "site",
	})
	require.NoError(t, err)

	t.Run("Stat file", func(t *testing.T) {
		info, err := store.Stat(ctx, "/index.html")
		require.NoError(t, err)
		assert.False(t, info.IsDir)
		assert.Equal(t, int64(13), info.Size)
		assert.False(t, info.ModTime.IsZero())
	})

	t.Run("Stat implicit directory", func(t *testing.T) {
		info, err := store.Stat(ctx, "/docs")
		require.NoError(t, err)
		assert.True(t, info.IsDir)
	})

	t.Run("ReadAll", func(t *testing.T) {
		data, err := store.ReadAll(ctx, "/docs/index.html")
		require.NoError(t, err)
		assert.Equal(t, "<h1>docs</h1>", string(data))
	})

	t.Run("ReadAll directory", func(t *testing.T) {
		_, err := store.ReadAll(ctx, "/docs")
		assert.True(t, errors.Is(err, docroot.ErrIsDirectory))
	})

	t.Run("Prefix confines lookups", func(t *testing.T) {
		_, err := store.Stat(ctx, "/../other/secret.txt")
		assert.True(t, errors.Is(err, docroot.ErrNotFound))

		_, err = store.ReadAll(ctx, "/secret.txt")
		assert.True(t, errors.Is(err, docroot.ErrNotFound))
	})
}

func TestS3Store_MissingBucket_Integration(t *testing.T) {
	client, _ := setupLocalstack(t)

	_, err := NewS3Store(context.Background(), S3StoreConfig{
		Client: client,
		Bucket: "dittoserve-no-such-bucket",
	})
	require.Error(t, err)
}
