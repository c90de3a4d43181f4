package api

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates outbound requests with a token bucket. Acquire never
// blocks; when the bucket is empty the caller is told how long it would
// have to wait.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a bucket refilling at rps tokens per second with
// the given burst capacity.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Acquire takes one token if available. When none is, the reservation is
// released and the required wait is returned.
func (r *RateLimiter) Acquire() (bool, time.Duration) {
	now := time.Now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, rate.InfDuration
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}
