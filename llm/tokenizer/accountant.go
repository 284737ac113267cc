package tokenizer

import (
	"go.uber.org/zap"
)

// TokenCount 是计数结果：Exact 区分精确计数与启发式估算。
type TokenCount struct {
	Tokens int  `json:"tokens"`
	Exact  bool `json:"exact"`
}

// Count 对文本计数，纯函数，对 (text, h) 确定。
// h 为 nil 或编码失败（含 panic）时返回 ceil(runes/4) 且 Exact=false。
func Count(text string, h *Handle) TokenCount {
	if h == nil {
		return TokenCount{Tokens: Estimate(text)}
	}
	if text == "" {
		return TokenCount{Exact: true}
	}
	n, err := h.count(text)
	if err != nil {
		return TokenCount{Tokens: Estimate(text)}
	}
	return TokenCount{Tokens: n, Exact: true}
}

// Tokens is Count without the exactness tag.
func Tokens(text string, h *Handle) int {
	return Count(text, h).Tokens
}

// Accountant 组合模型表与分词器注册表，负责计数和上限查询。
type Accountant struct {
	registry *Registry
	logger   *zap.Logger
}

// NewAccountant creates an accountant over the given registry.
// A nil registry means the process-wide default.
func NewAccountant(registry *Registry, logger *zap.Logger) *Accountant {
	if registry == nil {
		registry = Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accountant{
		registry: registry,
		logger:   logger.With(zap.String("component", "token_accountant")),
	}
}

// Resolve returns the shared handle for model.
func (a *Accountant) Resolve(model string) *Handle {
	return a.registry.Resolve(model)
}

// Count counts text with h.
func (a *Accountant) Count(text string, h *Handle) TokenCount {
	return Count(text, h)
}

// Tokens counts text with h and drops the exactness tag.
func (a *Accountant) Tokens(text string, h *Handle) int {
	return Count(text, h).Tokens
}

// CountFor resolves model and counts text with its handle.
func (a *Accountant) CountFor(text, model string) TokenCount {
	return Count(text, a.registry.Resolve(model))
}

// LimitFor 返回模型的上下文上限；未知模型返回默认值并记录日志。
func (a *Accountant) LimitFor(model string) int {
	p, ok := a.registry.Table().Lookup(model)
	if !ok {
		a.logger.Info("unknown model, using default token limit",
			zap.String("model", model),
			zap.Int("limit", p.TokenLimit))
	}
	return p.TokenLimit
}

// Profile returns the model profile and whether the model is known.
func (a *Accountant) Profile(model string) (ModelProfile, bool) {
	return a.registry.Table().Lookup(model)
}

// Models returns every known profile.
func (a *Accountant) Models() []ModelProfile {
	return a.registry.Table().Profiles()
}
