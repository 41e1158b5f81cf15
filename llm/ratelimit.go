package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited bounds the request rate to the wrapped gateway so that a wide
// persona fan-out stays within provider limits.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of perSecond requests and the
// given burst. A non-positive perSecond disables limiting.
func NewRateLimited(next Gateway, perSecond float64, burst int) Gateway {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimited) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewTransportError("rate limit wait", 0, err)
	}
	return r.next.Complete(ctx, req)
}
