// MockSummarizer 的摘要器测试模拟实现。
//
// 支持固定响应、按比例截短、延迟与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
)

// --- MockSummarizer 结构 ---

// MockSummarizer 是 summarizer.Summarizer 的模拟实现
type MockSummarizer struct {
	mu sync.Mutex

	// 响应配置
	response string
	ratio    float64
	err      error
	info     summarizer.Info

	// 调用记录
	calls         []MockSummarizerCall
	summarizeFunc func(ctx context.Context, chunkText, instructions string) (string, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	failFirst int // 前 N 次调用失败
	callCount int
	inFlight  int
	maxFlight int
}

// MockSummarizerCall 记录单次调用
type MockSummarizerCall struct {
	ChunkText    string
	Instructions string
	Output       string
	Error        error
}

// --- 构造函数和 Builder 方法 ---

// NewMockSummarizer 创建新的 MockSummarizer，默认原样返回块文本
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{
		ratio: 1,
		info:  summarizer.Info{Backend: "mock", Model: "mock-summarizer", InputLimit: 1000},
	}
}

// WithResponse 设置固定响应内容
func (m *MockSummarizer) WithResponse(response string) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithRatio 返回块文本按 rune 计的前 ratio 部分
func (m *MockSummarizer) WithRatio(ratio float64) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratio = ratio
	return m
}

// WithError 设置返回错误
func (m *MockSummarizer) WithError(err error) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithInputLimit 设置报告的输入上限
func (m *MockSummarizer) WithInputLimit(limit int) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info.InputLimit = limit
	return m
}

// WithModel 设置报告的模型名
func (m *MockSummarizer) WithModel(model string) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info.Model = model
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (m *MockSummarizer) WithDelay(d time.Duration) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockSummarizer) WithFailAfter(n int) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithFailFirst 设置前 N 次调用失败
func (m *MockSummarizer) WithFailFirst(n int) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFirst = n
	return m
}

// WithSummarizeFunc 设置自定义摘要函数
func (m *MockSummarizer) WithSummarizeFunc(fn func(ctx context.Context, chunkText, instructions string) (string, error)) *MockSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizeFunc = fn
	return m
}

// --- Summarizer 接口实现 ---

// Info 实现 summarizer.Describer
func (m *MockSummarizer) Info() summarizer.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Summarize 生成摘要
func (m *MockSummarizer) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.inFlight++
	if m.inFlight > m.maxFlight {
		m.maxFlight = m.inFlight
	}
	delay := m.delay
	fn := m.summarizeFunc
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.record(chunkText, instructions, "", ctx.Err())
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	var err error
	switch {
	case m.failAfter > 0 && n > m.failAfter:
		err = errors.New("mock summarizer: configured to fail after N calls")
	case n <= m.failFirst:
		err = errors.New("mock summarizer: configured to fail first N calls")
	case m.err != nil:
		err = m.err
	}
	response, ratio := m.response, m.ratio
	m.mu.Unlock()

	if err != nil {
		m.record(chunkText, instructions, "", err)
		return "", err
	}

	var out string
	switch {
	case fn != nil:
		out, err = fn(ctx, chunkText, instructions)
	case response != "":
		out = response
	default:
		out = prefix(chunkText, ratio)
	}
	m.record(chunkText, instructions, out, err)
	return out, err
}

func prefix(text string, ratio float64) string {
	if ratio >= 1 {
		return text
	}
	r := []rune(text)
	n := int(float64(len(r)) * ratio)
	if n < 1 && len(r) > 0 {
		n = 1
	}
	return string(r[:n])
}

func (m *MockSummarizer) record(chunkText, instructions, out string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockSummarizerCall{
		ChunkText:    chunkText,
		Instructions: instructions,
		Output:       out,
		Error:        err,
	})
}

// --- 调用记录查询 ---

// Calls 返回全部调用记录
func (m *MockSummarizer) Calls() []MockSummarizerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSummarizerCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MaxConcurrent 返回观察到的最大并发调用数
func (m *MockSummarizer) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight
}

// Reset 清空调用记录
func (m *MockSummarizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.maxFlight = 0
}
