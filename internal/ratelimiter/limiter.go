package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces outbound sends with a token bucket shared by every dispatch
// worker. Burst equals the rate so idle periods do not bank extra capacity.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing ratePerSec sends per second.
// A rate of zero or less disables limiting.
func New(ratePerSec int) *Limiter {
	if ratePerSec <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until a token is available.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
