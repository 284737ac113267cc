package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/types"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常调用后端）
	StateClosed State = iota
	// StateOpen 打开状态（直接拒绝，不打扰已经失联的后端）
	StateOpen
	// StateHalfOpen 半开状态（放行少量试探请求）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// ResetTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的最大试探请求数
	HalfOpenMaxCalls int

	// OnStateChange 状态变更回调，在持锁之外同步调用
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return c
}

// ErrCircuitOpen 是熔断期间返回错误的根因，可用 errors.Is 判断。
var ErrCircuitOpen = errors.New("circuit open")

// Breaker 按连续失败次数保护一个后端。零值不可用，使用 New 创建。
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             State
	failureCount      int       // 连续失败次数
	openedAt          time.Time // 最近一次打开时间
	halfOpenCallCount int       // 半开状态下已放行的请求数
}

// New 创建熔断器。name 出现在日志与错误信息中，通常是后端名。
func New(name string, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		config: config.normalized(),
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("backend", name)),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Call 执行 fn；熔断打开时不调用 fn，直接返回不可重试的 SERVICE_UNAVAILABLE 错误。
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(ctx, err)
	return err
}

// Do 是 Call 的泛型版本，返回 fn 的结果。
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// countsAsFailure 判断错误是否计入熔断失败。
// 调用方取消、请求级截止时间到期与请求本身无效都与后端健康无关；
// 单次调用自己的超时仍计入失败。
func countsAsFailure(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if ctx.Err() != nil && errors.Is(context.Cause(ctx), types.ErrRequestDeadline) {
		return false
	}
	switch types.GetErrorCode(err) {
	case types.ErrInvalidRequest, types.ErrPayloadTooLarge:
		return false
	}
	return true
}

// beforeCall 调用前检查
func (b *Breaker) beforeCall() error {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.ResetTimeout {
			b.mu.Unlock()
			return b.openError()
		}
		notify := b.transition(StateHalfOpen)
		b.halfOpenCallCount = 1
		b.mu.Unlock()
		notify()
		b.logger.Info("circuit half-open, probing backend")
		return nil

	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			b.mu.Unlock()
			return b.openError()
		}
		b.halfOpenCallCount++
	}

	b.mu.Unlock()
	return nil
}

// afterCall 调用后处理；不计入失败的错误只归还半开名额
func (b *Breaker) afterCall(ctx context.Context, err error) {
	b.mu.Lock()
	notify := func() {}
	switch {
	case err == nil:
		notify = b.onSuccess()
	case countsAsFailure(ctx, err):
		notify = b.onFailure()
	case b.state == StateHalfOpen && b.halfOpenCallCount > 0:
		b.halfOpenCallCount--
	}
	b.mu.Unlock()
	notify()
}

// onSuccess 处理成功调用；调用方持锁
func (b *Breaker) onSuccess() func() {
	b.failureCount = 0
	if b.state != StateHalfOpen {
		return func() {}
	}
	b.logger.Info("circuit closed, backend recovered")
	b.halfOpenCallCount = 0
	return b.transition(StateClosed)
}

// onFailure 处理失败调用；调用方持锁
func (b *Breaker) onFailure() func() {
	b.failureCount++

	switch b.state {
	case StateClosed:
		if b.failureCount < b.config.Threshold {
			return func() {}
		}
		b.logger.Warn("circuit opened",
			zap.Int("failure_count", b.failureCount),
			zap.Int("threshold", b.config.Threshold))
	case StateHalfOpen:
		b.logger.Warn("trial call failed, circuit reopened")
	default:
		return func() {}
	}
	b.openedAt = b.now()
	b.halfOpenCallCount = 0
	return b.transition(StateOpen)
}

// transition 切换状态，返回在解锁后执行的回调
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	cb := b.config.OnStateChange
	if cb == nil || from == to {
		return func() {}
	}
	return func() { cb(from, to) }
}

func (b *Breaker) openError() error {
	return types.NewError(types.ErrServiceUnavailable,
		fmt.Sprintf("%s backend unavailable after %d consecutive failures", b.name, b.config.Threshold)).
		WithCause(ErrCircuitOpen).
		WithBackend(b.name).
		WithHTTPStatus(503)
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复到关闭状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.transition(StateClosed)
	b.failureCount = 0
	b.halfOpenCallCount = 0
	b.mu.Unlock()
	notify()
	b.logger.Info("circuit reset")
}
