package querycache

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// RateLimited wraps p with a token bucket of perSecond requests and the
// given burst. A request over budget fails fast with ErrRateLimited instead
// of waiting, so the caller can degrade to keyword search.
func RateLimited(p Provider, perSecond float64, burst int) Provider {
	if p == nil || perSecond <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedProvider{
		next:    p,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *rateLimitedProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	if !r.limiter.Allow() {
		return Embedding{}, ErrRateLimited
	}
	return r.next.Embed(ctx, text)
}
