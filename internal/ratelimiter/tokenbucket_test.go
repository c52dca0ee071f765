package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketUnlimited(t *testing.T) {
	b := NewTokenBucket(0, 0)
	assert.True(t, b.Unlimited())

	for i := 0; i < 10_000; i++ {
		require.True(t, b.Allow(), "request %d should be allowed", i)
	}
}

func TestTokenBucketBurst(t *testing.T) {
	b := NewTokenBucket(10, 5)
	assert.False(t, b.Unlimited())

	for i := 0; i < 5; i++ {
		require.True(t, b.Allow(), "request %d should be within burst", i)
	}
	assert.False(t, b.Allow(), "bucket should be empty after burst")

	// 10 tokens/s refills one token every 100ms
	time.Sleep(120 * time.Millisecond)
	assert.True(t, b.Allow())
}

func TestTokenBucketDefaultBurst(t *testing.T) {
	b := NewTokenBucket(3, 0)
	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
	}
	assert.False(t, b.Allow())
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	b := NewTokenBucket(1, 1)
	require.True(t, b.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, b.Wait(ctx))
}

func TestTokenBucketSetRate(t *testing.T) {
	b := NewTokenBucket(1, 1)
	require.True(t, b.Allow())
	require.False(t, b.Allow())

	b.SetRate(0)
	assert.True(t, b.Unlimited())
	assert.True(t, b.Allow())
}
