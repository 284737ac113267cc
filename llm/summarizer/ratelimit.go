package summarizer

import (
	"context"
	"fmt"

	"github.com/IshaanRSharma/chatdigest/types"
	"golang.org/x/time/rate"
)

// RateLimited 限制对上游的请求速率，等待受 ctx 约束。
type RateLimited struct {
	next    Summarizer
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
// rps <= 0 disables limiting.
func NewRateLimited(next Summarizer, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Info implements Describer.
func (r *RateLimited) Info() Info {
	return Describe(r.next)
}

// Summarize implements Summarizer.
func (r *RateLimited) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", types.NewError(types.ErrRateLimited, fmt.Sprintf("waiting for %s rate limit", Describe(r.next).Backend)).
			WithCause(err).
			WithRetryable(ctx.Err() == nil)
	}
	return r.next.Summarize(ctx, chunkText, instructions)
}
