package main

import (
	"context"

	"golang.org/x/time/rate"
)

// acceptRateLimiter paces new TCP accepts on one listener. Short spikes up to
// burst pass immediately; beyond that accepts wait for tokens.
type acceptRateLimiter struct {
	limiter *rate.Limiter
}

func newAcceptRateLimiter(maxPerSecond, burst int) *acceptRateLimiter {
	if maxPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = maxPerSecond
	}
	return &acceptRateLimiter{limiter: rate.NewLimiter(rate.Limit(maxPerSecond), burst)}
}

// updateRate changes rate and burst in place.
func (l *acceptRateLimiter) updateRate(maxPerSecond, burst int) {
	if l == nil {
		return
	}
	l.limiter.SetLimit(rate.Limit(maxPerSecond))
	l.limiter.SetBurst(burst)
}

// wait blocks until an accept may proceed. It returns false when ctx ends
// first so shutdown is not delayed by the limiter.
func (l *acceptRateLimiter) wait(ctx context.Context) bool {
	if l == nil {
		return true
	}
	return l.limiter.Wait(ctx) == nil
}
