package summarizer

import (
	"context"

	"github.com/IshaanRSharma/chatdigest/llm/circuitbreaker"
)

// Guarded 在后端连续失败后直接拒绝调用，让剩余分块立即走失败隔离，
// 而不是各自等满超时与重试。
type Guarded struct {
	next    Summarizer
	breaker *circuitbreaker.Breaker
}

// NewGuarded wraps next with breaker.
func NewGuarded(next Summarizer, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// Info implements Describer.
func (g *Guarded) Info() Info {
	return Describe(g.next)
}

// State reports the breaker state.
func (g *Guarded) State() circuitbreaker.State {
	return g.breaker.State()
}

// Summarize implements Summarizer.
func (g *Guarded) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return g.next.Summarize(ctx, chunkText, instructions)
	})
}
