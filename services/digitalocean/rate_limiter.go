package digitalocean

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every outbound inference call of
// the process, so concurrent section imports cannot burst past the
// provider's limits
type RateLimiter struct {
	limiter *rate.Limiter
}

// RateLimiterConfig sizes the bucket. Zero values default to a burst of 5
// and one token per second.
type RateLimiterConfig struct {
	MaxTokens  float64
	RefillRate float64
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	burst := int(config.MaxTokens)
	if burst < 1 {
		burst = 5
	}
	refill := config.RefillRate
	if refill <= 0 {
		refill = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(refill), burst)}
}

// Wait blocks until a token is available. When ctx would expire first it
// returns at once with an error matching context.DeadlineExceeded.
func (r *RateLimiter) Wait(ctx context.Context) error {
	err := r.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
}

// TryAcquire takes a token without blocking and reports whether it got one
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}

// AvailableTokens returns the tokens currently in the bucket
func (r *RateLimiter) AvailableTokens() float64 {
	return r.limiter.Tokens()
}
