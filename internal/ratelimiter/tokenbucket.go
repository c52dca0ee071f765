package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenBucket is a token-bucket throttle for connection acceptance.
//
// Tokens refill at a constant rate up to the burst size, and each accepted
// connection consumes one. A zero rate disables throttling entirely.
//
// Thread safety:
// All methods are safe for concurrent use.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a throttle allowing perSecond events on average with
// bursts of up to burst events.
//
// Special cases:
//   - perSecond = 0: unlimited
//   - burst = 0 with perSecond > 0: burst defaults to perSecond
func NewTokenBucket(perSecond, burst uint) *TokenBucket {
	if perSecond == 0 {
		return &TokenBucket{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = perSecond
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Unlimited reports whether the bucket never throttles.
func (b *TokenBucket) Unlimited() bool {
	return b.limiter.Limit() == rate.Inf
}

// Allow consumes a token if one is available and reports whether it did.
func (b *TokenBucket) Allow() bool {
	return b.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// SetRate changes the refill rate. Zero switches to unlimited.
func (b *TokenBucket) SetRate(perSecond uint) {
	if perSecond == 0 {
		b.limiter.SetLimit(rate.Inf)
		return
	}
	b.limiter.SetLimit(rate.Limit(perSecond))
	if b.limiter.Burst() == 0 {
		b.limiter.SetBurst(int(perSecond))
	}
}
