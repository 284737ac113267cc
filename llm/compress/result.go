package compress

import (
	"fmt"
	"math"

	"github.com/IshaanRSharma/chatdigest/types"
)

// Result 是一次压缩请求的结果。
type Result struct {
	RunID string `json:"run_id"`
	// Transcript 是压缩后的对话；直通时与输入相同。
	Transcript types.Transcript `json:"-"`
	// Content 是 Transcript 的序列化文本。
	Content             string  `json:"compressed_content"`
	OriginalTokens      int     `json:"original_tokens"`
	CompressedTokens    int     `json:"compressed_tokens"`
	BudgetTokens        int     `json:"budget_tokens"`
	ReductionPercentage float64 `json:"reduction_percentage"`
	// OverBudget 表示在轮数或时间用尽后仍超出预算。
	OverBudget bool `json:"over_budget"`
	// Passes 是实际执行的压缩轮数，直通时为 0。
	Passes int `json:"passes"`
	// FailedChunks 是返回结果中被截断兜底的块数（沿产出该结果的各轮累计）。
	FailedChunks int `json:"failed_chunks"`
	// Exact 表示两次计数都由真实分词器完成。
	Exact bool `json:"exact"`
}

// PassThrough reports whether the input was returned unchanged.
func (r *Result) PassThrough() bool {
	return r.Passes == 0
}

// Reduction 返回 (1 - compressed/original) × 100，截断到 [0,100] 并保留一位小数。
// original 为 0 时返回 0。
func Reduction(original, compressed int) float64 {
	if original <= 0 {
		return 0
	}
	if compressed < 0 {
		compressed = 0
	}
	r := (1 - float64(compressed)/float64(original)) * 100
	r = math.Round(r*10) / 10
	return math.Max(0, math.Min(100, r))
}

// CompressionFailedError 是唯一跨越压缩边界的错误，携带未改动的原始对话，
// 调用方可以直接回退到原文。
type CompressionFailedError struct {
	Err             *types.Error
	Original        types.Transcript
	OriginalContent string
	FailedChunks    int
	TotalChunks     int
}

// Error implements error.
func (e *CompressionFailedError) Error() string {
	return fmt.Sprintf("compression failed: %d of %d chunks failed: %v", e.FailedChunks, e.TotalChunks, e.Err)
}

// Unwrap exposes the underlying *types.Error.
func (e *CompressionFailedError) Unwrap() error {
	return e.Err
}
