// Package ratelimit throttles the gate's read endpoints with a per-caller
// token bucket. The validation path is never rate limited: backpressure
// there surfaces as an auditable OVERLOAD denial, not a 429.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether the request identified by key may proceed.
	// Keys name the caller: "agent:<id>" for authenticated agents,
	// "ip:<addr>" otherwise. An error signals a limiter malfunction;
	// callers fail open so a broken limiter cannot take reads down.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (eviction goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Wired when rate limiting is disabled
// by configuration.
type NoopLimiter struct{}

// Allow always reports true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
