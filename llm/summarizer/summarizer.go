package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IshaanRSharma/chatdigest/types"
)

// Summarizer 是外部摘要协作者：给定块文本与指令，返回压缩后的文本。
// 实现可能失败、超时或返回任意长度的输出，调用方负责兜底。
type Summarizer interface {
	Summarize(ctx context.Context, chunkText, instructions string) (string, error)
}

// Info 描述摘要后端。
type Info struct {
	Backend    string `json:"backend"`
	Model      string `json:"model"`
	InputLimit int    `json:"input_limit"`
}

// Describer is implemented by summarizers that can report their backend and input limit.
type Describer interface {
	Info() Info
}

// Describe returns s's Info, following decorators down to the backend.
func Describe(s Summarizer) Info {
	if d, ok := s.(Describer); ok {
		return d.Info()
	}
	return Info{Backend: "custom"}
}

// Func adapts an ordinary function to Summarizer.
type Func func(ctx context.Context, chunkText, instructions string) (string, error)

// Summarize calls f.
func (f Func) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	return f(ctx, chunkText, instructions)
}

// ErrEmptySummary 表示上游返回了空文本，按失败处理。
var ErrEmptySummary = errors.New("summarizer returned empty text")

// Identity 原样返回块文本，用于往返测试与离线运行。
var Identity Summarizer = Func(func(_ context.Context, chunkText, _ string) (string, error) {
	return chunkText, nil
})

func upstreamError(backend string, status int, body string) *types.Error {
	msg := fmt.Sprintf("%s returned status %d", backend, status)
	if body = strings.TrimSpace(body); body != "" {
		if len(body) > 200 {
			body = body[:200]
		}
		msg += ": " + body
	}
	return types.NewError(types.ErrUpstreamError, msg).
		WithHTTPStatus(status).
		WithRetryable(status == 429 || status >= 500).
		WithBackend(backend)
}
