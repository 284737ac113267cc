package summarizer

import (
	"context"
	"errors"
	"time"

	"github.com/IshaanRSharma/chatdigest/llm/circuitbreaker"
	"github.com/IshaanRSharma/chatdigest/types"
)

// Recorder 记录每次摘要调用，由 internal/metrics.Collector 实现。
type Recorder interface {
	RecordSummarization(backend, status string, duration time.Duration)
}

// BreakerRecorder 记录熔断器状态变化，由 internal/metrics.Collector 实现。
type BreakerRecorder interface {
	RecordBreakerState(backend string, state int)
}

// Instrumented 为每次调用记录状态与耗时。
type Instrumented struct {
	next     Summarizer
	recorder Recorder
}

// NewInstrumented wraps next.
func NewInstrumented(next Summarizer, recorder Recorder) *Instrumented {
	return &Instrumented{next: next, recorder: recorder}
}

// Info implements Describer.
func (i *Instrumented) Info() Info {
	return Describe(i.next)
}

// Summarize implements Summarizer.
func (i *Instrumented) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	start := time.Now()
	out, err := i.next.Summarize(ctx, chunkText, instructions)
	if i.recorder != nil {
		i.recorder.RecordSummarization(Describe(i.next).Backend, status(err), time.Since(start))
	}
	return out, err
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrEmptySummary):
		return "empty"
	case types.IsErrorCode(err, types.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
