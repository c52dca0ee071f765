// Package ratelimiter contains the two throttles used by the HTTP adapter.
//
// SlidingWindow decides, per client address, whether a request may proceed
// by counting the requests recorded inside the most recent interval. Its
// state is a fixed-size table of slots owned by the instance, so several
// servers in one process never share history.
//
// TokenBucket wraps golang.org/x/time/rate and bounds the rate at which the
// acceptor hands new connections to the worker pool.
package ratelimiter
