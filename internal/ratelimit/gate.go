// Package ratelimit spaces out calls to external APIs.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate admits at most one call per interval. The zero interval admits
// every call immediately. A nil *Gate is valid and never blocks.
type Gate struct {
	limiter *rate.Limiter
}

// New returns a gate that allows one call every interval.
func New(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is admitted or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	return g.limiter.Wait(ctx)
}
