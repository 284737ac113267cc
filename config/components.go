package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IshaanRSharma/chatdigest/internal/cache"
	"github.com/IshaanRSharma/chatdigest/llm/circuitbreaker"
	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🔄 组件配置转换
// =============================================================================

// CompressConfig 转换为编排器配置，未暴露的字段保留组件默认值。
func (c CompressionConfig) CompressConfig() compress.Config {
	out := compress.DefaultConfig()
	out.BudgetFraction = c.BudgetFraction
	out.MaxPasses = c.MaxPasses
	out.Concurrency = c.Concurrency
	out.CallTimeout = c.CallTimeout
	out.Deadline = c.Deadline
	out.MinChunkTokens = c.MinChunkTokens
	out.FailureThreshold = c.FailureThreshold
	out.RestoreCodeBlocks = c.RestoreCodeBlocks
	out.Retry.MaxRetries = c.MaxRetries
	if c.InitialDelay > 0 {
		out.Retry.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		out.Retry.MaxDelay = c.MaxDelay
	}
	return out
}

// FactoryConfig 转换为摘要器工厂配置。cacheTTL 来自 cache 段。
func (s SummarizerConfig) FactoryConfig(cacheTTL time.Duration) summarizer.Config {
	return summarizer.Config{
		Backend: s.Backend,
		Ollama: summarizer.OllamaConfig{
			BaseURL:     s.Ollama.BaseURL,
			Model:       s.Ollama.Model,
			Temperature: s.Ollama.Temperature,
			TopP:        s.Ollama.TopP,
			NumPredict:  s.Ollama.NumPredict,
			Timeout:     s.Ollama.Timeout,
			InputLimit:  s.Ollama.InputLimit,
		},
		Anthropic: summarizer.AnthropicConfig{
			APIKey:     s.Anthropic.APIKey,
			BaseURL:    s.Anthropic.BaseURL,
			Model:      s.Anthropic.Model,
			MaxTokens:  s.Anthropic.MaxTokens,
			Timeout:    s.Anthropic.Timeout,
			InputLimit: s.Anthropic.InputLimit,
		},
		RateLimit: s.RateLimit,
		Burst:     s.Burst,
		CacheTTL:  cacheTTL,
		Breaker: circuitbreaker.Config{
			Threshold:    s.BreakerThreshold,
			ResetTimeout: s.BreakerResetTimeout,
		},
	}
}

// ManagerConfig 转换为 Redis 缓存管理器配置
func (c CacheConfig) ManagerConfig() cache.Config {
	out := cache.DefaultConfig()
	out.Addr = c.Addr
	out.Password = c.Password
	out.DB = c.DB
	out.KeyPrefix = c.KeyPrefix
	out.DefaultTTL = c.TTL
	out.PoolSize = c.PoolSize
	out.TLS = c.TLS
	return out
}

// =============================================================================
// ✅ 配置校验
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 服务器
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "max_body_bytes must be positive")
	}

	// 压缩
	comp := c.Compression
	if comp.BudgetFraction <= 0 || comp.BudgetFraction > 1 {
		errs = append(errs, "budget_fraction must be in (0, 1]")
	}
	if comp.MaxPasses < 1 {
		errs = append(errs, "max_passes must be at least 1")
	}
	if comp.Concurrency < 1 {
		errs = append(errs, "concurrency must be at least 1")
	}
	if comp.CallTimeout <= 0 {
		errs = append(errs, "call_timeout must be positive")
	}
	if comp.Deadline < 0 {
		errs = append(errs, "deadline must not be negative")
	}
	if comp.FailureThreshold <= 0 || comp.FailureThreshold > 1 {
		errs = append(errs, "failure_threshold must be in (0, 1]")
	}
	if comp.MaxRetries < 0 {
		errs = append(errs, "max_retries must not be negative")
	}

	// 摘要后端
	switch c.Summarizer.Backend {
	case summarizer.BackendOllama:
		if c.Summarizer.Ollama.BaseURL == "" {
			errs = append(errs, "summarizer.ollama.base_url is required")
		}
	case summarizer.BackendAnthropic:
		if c.Summarizer.Anthropic.APIKey == "" {
			errs = append(errs, "summarizer.anthropic.api_key is required")
		}
	case summarizer.BackendIdentity:
	default:
		errs = append(errs, fmt.Sprintf("unknown summarizer backend %q", c.Summarizer.Backend))
	}
	if c.Summarizer.BreakerThreshold < 0 {
		errs = append(errs, "summarizer.breaker_threshold must be >= 0")
	}
	if c.Summarizer.RateLimit < 0 {
		errs = append(errs, "summarizer.rate_limit must not be negative")
	}

	// 缓存
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required when cache is enabled")
	}

	// 日志
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}

	// 遥测
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be in [0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// =============================================================================
// 🔒 脱敏视图
// =============================================================================

const redacted = "[REDACTED]"

// Sanitized 返回敏感字段已脱敏的配置视图，键名与 YAML 一致。
func (c *Config) Sanitized() map[string]any {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil
	}

	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil
	}

	redactSensitiveFields(result)
	return result
}

// SanitizedJSON 返回脱敏视图的 JSON 编码，用于启动日志。
func (c *Config) SanitizedJSON() string {
	data, err := json.Marshal(c.Sanitized())
	if err != nil {
		return "{}"
	}
	return string(data)
}

var sensitiveKeys = []string{"password", "api_key", "apikey", "secret", "token", "credential"}

// redactSensitiveFields 递归地脱敏敏感字段
func redactSensitiveFields(data map[string]any) {
	for key, value := range data {
		lowerKey := strings.ToLower(key)
		sensitive := false
		for _, s := range sensitiveKeys {
			if strings.Contains(lowerKey, s) {
				sensitive = true
				break
			}
		}

		switch v := value.(type) {
		case map[string]any:
			redactSensitiveFields(v)
		case string:
			if sensitive && v != "" {
				data[key] = redacted
			}
		case []any:
			if sensitive && len(v) > 0 {
				data[key] = redacted
			}
		}
	}
}
