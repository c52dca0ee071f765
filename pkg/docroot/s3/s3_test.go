package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittoserve/pkg/docroot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	data    []byte
	modTime time.Time
}

// fakeClient is an in-memory stand-in for the S3 API.
type fakeClient struct {
	bucket    string
	objects   map[string]object
	bucketErr error
	getErr    error
}

func newFakeClient(bucket string) *fakeClient {
	return &fakeClient{bucket: bucket, objects: make(map[string]object)}
}

func (c *fakeClient) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if c.bucketErr != nil {
		return nil, c.bucketErr
	}
	if aws.ToString(in.Bucket) != c.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (c *fakeClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modTime),
	}, nil
}

func (c *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}, nil
}

func (c *fakeClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var contents []types.Object
	for key := range c.objects {
		if strings.HasPrefix(key, prefix) {
			contents = append(contents, types.Object{Key: aws.String(key)})
			break
		}
	}
	return &s3.ListObjectsV2Output{
		Contents: contents,
		KeyCount: aws.Int32(int32(len(contents))),
	}, nil
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   map[string]int
	errs  int
	bytes int64
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops == nil {
		m.ops = make(map[string]int)
	}
	m.ops[op]++
	if err != nil {
		m.errs++
	}
}

func (m *recordingMetrics) RecordBytes(_ string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes += n
}

func newTestStore(t *testing.T, prefix string) (*S3Store, *fakeClient, *recordingMetrics) {
	t.Helper()
	client := newFakeClient("site")
	metrics := &recordingMetrics{}
	store, err := NewS3Store(context.Background(), S3StoreConfig{
		Client:    client,
		Bucket:    "site",
		KeyPrefix: prefix,
		Metrics:   metrics,
	})
	require.NoError(t, err)
	return store, client, metrics
}

func TestNewS3StoreValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3Store(ctx, S3StoreConfig{Bucket: "site"})
	assert.Error(t, err)

	_, err = NewS3Store(ctx, S3StoreConfig{Client: newFakeClient("site")})
	assert.Error(t, err)

	client := newFakeClient("site")
	client.bucketErr = errors.New("access denied")
	_, err = NewS3Store(ctx, S3StoreConfig{Client: client, Bucket: "site"})
	assert.Error(t, err)

	store, err := NewS3Store(ctx, S3StoreConfig{Client: client, Bucket: "site", SkipBucketCheck: true})
	require.NoError(t, err)
	assert.Equal(t, "s3://site/", store.Name())
}

func TestKeyPrefixNormalization(t *testing.T) {
	store, _, _ := newTestStore(t, "/sites/www")
	assert.Equal(t, "sites/www/", store.keyPrefix)

	key, err := store.objectKey("/css/site.css")
	require.NoError(t, err)
	assert.Equal(t, "sites/www/css/site.css", key)
}

func TestStatAndReadAll(t *testing.T) {
	store, client, metrics := newTestStore(t, "www/")
	mtime := time.Unix(1_690_000_000, 0).UTC()
	client.objects["www/index.html"] = object{data: []byte("<h1>s3</h1>"), modTime: mtime}
	client.objects["www/docs/guide.txt"] = object{data: []byte("guide"), modTime: mtime}

	ctx := context.Background()

	info, err := store.Stat(ctx, "/index.html")
	require.NoError(t, err)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(11), info.Size)
	assert.True(t, info.ModTime.Equal(mtime))

	data, err := store.ReadAll(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>s3</h1>", string(data))

	dir, err := store.Stat(ctx, "/docs")
	require.NoError(t, err)
	assert.True(t, dir.IsDir)

	root, err := store.Stat(ctx, "/")
	require.NoError(t, err)
	assert.True(t, root.IsDir)

	_, err = store.ReadAll(ctx, "/docs")
	assert.ErrorIs(t, err, docroot.ErrIsDirectory)

	_, err = store.Stat(ctx, "/missing.txt")
	assert.ErrorIs(t, err, docroot.ErrNotFound)

	_, err = store.ReadAll(ctx, "/missing.txt")
	assert.ErrorIs(t, err, docroot.ErrNotFound)

	_, err = store.Stat(ctx, "/../escape")
	assert.ErrorIs(t, err, docroot.ErrNotFound)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, int64(11), metrics.bytes)
	assert.Equal(t, 0, metrics.errs, "not-found is not an S3 error")
	assert.Greater(t, metrics.ops["Stat"], 0)
	assert.Greater(t, metrics.ops["ReadAll"], 0)
}

func TestReadAllBackendError(t *testing.T) {
	store, client, metrics := newTestStore(t, "")
	client.objects["a.txt"] = object{data: []byte("a")}
	client.getErr = errors.New("503 slow down")

	_, err := store.ReadAll(context.Background(), "/a.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, docroot.ErrNotFound)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.errs)
}
