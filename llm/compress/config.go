package compress

import (
	"time"

	"github.com/IshaanRSharma/chatdigest/llm/retry"
)

// Config 压缩编排器配置
type Config struct {
	// BudgetFraction 是目标模型上下文窗口中留给压缩结果的比例，(0,1]。
	BudgetFraction float64 `yaml:"budget_fraction" json:"budget_fraction" env:"BUDGET_FRACTION"`
	// BudgetTokens 非零时直接作为预算，覆盖 BudgetFraction。
	BudgetTokens int `yaml:"budget_tokens" json:"budget_tokens" env:"BUDGET_TOKENS"`
	// MaxPasses 是最多的压缩轮数。
	MaxPasses int `yaml:"max_passes" json:"max_passes" env:"MAX_PASSES"`
	// Concurrency 是同时进行的摘要调用数。
	Concurrency int `yaml:"concurrency" json:"concurrency" env:"CONCURRENCY"`
	// CallTimeout 限制单次摘要调用（每次重试单独计时）。
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout" env:"CALL_TIMEOUT"`
	// Deadline 限制整个压缩请求，0 表示不限制。
	Deadline time.Duration `yaml:"deadline" json:"deadline" env:"DEADLINE"`
	// MinChunkTokens 是逐轮减半时块上限的下限。
	MinChunkTokens int `yaml:"min_chunk_tokens" json:"min_chunk_tokens" env:"MIN_CHUNK_TOKENS"`
	// DefaultInputLimit 用于没有报告输入上限的摘要器。
	DefaultInputLimit int `yaml:"default_input_limit" json:"default_input_limit" env:"DEFAULT_INPUT_LIMIT"`
	// FailureThreshold 是失败块占比达到多少时整体失败，1.0 表示全部失败。
	FailureThreshold float64 `yaml:"failure_threshold" json:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// HardCapFactor 决定代码块硬上限：HardCapFactor × 块上限。
	HardCapFactor int `yaml:"hard_cap_factor" json:"hard_cap_factor" env:"HARD_CAP_FACTOR"`
	// RestoreCodeBlocks 把摘要遗漏的代码块补回到该块摘要末尾。
	RestoreCodeBlocks bool `yaml:"restore_code_blocks" json:"restore_code_blocks" env:"RESTORE_CODE_BLOCKS"`

	Retry retry.Policy `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BudgetFraction:    0.5,
		MaxPasses:         3,
		Concurrency:       3,
		CallTimeout:       120 * time.Second,
		Deadline:          10 * time.Minute,
		MinChunkTokens:    128,
		DefaultInputLimit: 4000,
		FailureThreshold:  1.0,
		HardCapFactor:     2,
		RestoreCodeBlocks: true,
		Retry:             retry.DefaultPolicy(),
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.BudgetFraction <= 0 || c.BudgetFraction > 1 {
		c.BudgetFraction = def.BudgetFraction
	}
	if c.BudgetTokens < 0 {
		c.BudgetTokens = 0
	}
	if c.MaxPasses < 1 {
		c.MaxPasses = def.MaxPasses
	}
	if c.Concurrency < 1 {
		c.Concurrency = def.Concurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.Deadline < 0 {
		c.Deadline = 0
	}
	if c.MinChunkTokens < 1 {
		c.MinChunkTokens = def.MinChunkTokens
	}
	if c.DefaultInputLimit < 1 {
		c.DefaultInputLimit = def.DefaultInputLimit
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.HardCapFactor < 1 {
		c.HardCapFactor = def.HardCapFactor
	}
	return c
}

// Option 覆盖单次 Compress 调用的配置。
type Option func(*Config)

// WithBudgetFraction sets the share of the target model's window the result may use.
func WithBudgetFraction(f float64) Option {
	return func(c *Config) { c.BudgetFraction = f }
}

// WithBudgetTokens sets an absolute token budget.
func WithBudgetTokens(n int) Option {
	return func(c *Config) { c.BudgetTokens = n }
}

// WithMaxPasses limits the number of compression passes.
func WithMaxPasses(n int) Option {
	return func(c *Config) { c.MaxPasses = n }
}

// WithConcurrency limits in-flight summarizer calls.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// WithCallTimeout bounds each summarizer attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Config) { c.CallTimeout = d }
}

// WithDeadline bounds the whole request.
func WithDeadline(d time.Duration) Option {
	return func(c *Config) { c.Deadline = d }
}

// WithRetryPolicy replaces the per-chunk retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Config) { c.Retry = p }
}

// WithFailureThreshold sets the failed-chunk ratio that fails the request.
func WithFailureThreshold(f float64) Option {
	return func(c *Config) { c.FailureThreshold = f }
}

// WithCodeBlockRestoration toggles re-appending dropped code blocks.
func WithCodeBlockRestoration(on bool) Option {
	return func(c *Config) { c.RestoreCodeBlocks = on }
}
