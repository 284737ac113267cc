package summarizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/llm/circuitbreaker"
)

// Backend names.
const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendIdentity  = "identity"
)

// Config 选择后端并配置装饰器。
type Config struct {
	Backend   string
	Ollama    OllamaConfig
	Anthropic AnthropicConfig
	// RateLimit 是每秒请求数，0 表示不限速。
	RateLimit float64
	Burst     int
	// CacheTTL 是缓存摘要的过期时间；Store 为 nil 时不缓存。
	CacheTTL time.Duration
	// Breaker 保护远程后端；Threshold 为 0 表示不启用。
	Breaker circuitbreaker.Config
}

// Deps are optional collaborators for Build.
type Deps struct {
	Store    Store
	Recorder Recorder
	Logger   *zap.Logger
}

// identityBackend reports itself so that the identity summarizer has a stable Info.
type identityBackend struct{ limit int }

func (identityBackend) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	return Identity.Summarize(ctx, chunkText, instructions)
}

func (b identityBackend) Info() Info {
	return Info{Backend: BackendIdentity, Model: BackendIdentity, InputLimit: b.limit}
}

// Build 组装：backend → Guarded → Instrumented → RateLimited → Cached（最外层，命中不消耗配额）。
// identity 后端不经过熔断器。
func Build(cfg Config, deps Deps) (Summarizer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var s Summarizer
	switch cfg.Backend {
	case BackendOllama, "":
		s = NewOllamaSummarizer(cfg.Ollama, logger)
	case BackendAnthropic:
		s = NewAnthropicSummarizer(cfg.Anthropic, logger)
	case BackendIdentity:
		s = identityBackend{limit: DefaultOllamaConfig().InputLimit}
	default:
		return nil, fmt.Errorf("unknown summarizer backend %q", cfg.Backend)
	}

	if cfg.Breaker.Threshold > 0 && cfg.Backend != BackendIdentity {
		s = NewGuarded(s, newBreaker(Describe(s).Backend, cfg.Breaker, deps.Recorder, logger))
	}
	if deps.Recorder != nil {
		s = NewInstrumented(s, deps.Recorder)
	}
	if cfg.RateLimit > 0 {
		s = NewRateLimited(s, cfg.RateLimit, cfg.Burst)
	}
	if deps.Store != nil {
		cached := NewCached(s, deps.Store, cfg.CacheTTL, logger)
		if cr, ok := deps.Recorder.(CacheRecorder); ok {
			cached.WithRecorder(cr)
		}
		s = cached
	}

	info := Describe(s)
	logger.Info("summarizer ready",
		zap.String("backend", info.Backend),
		zap.String("model", info.Model),
		zap.Int("input_limit", info.InputLimit),
		zap.Bool("cached", deps.Store != nil),
		zap.Int("breaker_threshold", cfg.Breaker.Threshold),
		zap.Float64("rate_limit", cfg.RateLimit))
	return s, nil
}

// newBreaker 创建熔断器，并在 recorder 支持时上报状态变化。
func newBreaker(backend string, cfg circuitbreaker.Config, recorder Recorder, logger *zap.Logger) *circuitbreaker.Breaker {
	if br, ok := recorder.(BreakerRecorder); ok {
		next := cfg.OnStateChange
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			br.RecordBreakerState(backend, int(to))
			if next != nil {
				next(from, to)
			}
		}
	}
	return circuitbreaker.New(backend, cfg, logger)
}
