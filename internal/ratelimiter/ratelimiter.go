// Package ratelimiter throttles connection admission with a token bucket.
package ratelimiter

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides, without waiting, whether one more connection may be
// admitted right now.
//
// The bucket refills at the configured rate and holds at most burst tokens;
// each admission spends one. A nil *RateLimiter admits everything, so callers
// can keep an optional limiter without nil checks.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New returns a limiter allowing perSecond admissions with the given burst.
// A non-positive rate means no limit and yields nil. A non-positive burst is
// raised to 1 so that a limited server still admits someone.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.AllowN(time.Now(), 1)
}

// Tokens returns the tokens currently in the bucket. It is meant for logs.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}

// Limit returns the configured rate, or 0 when unlimited.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}
