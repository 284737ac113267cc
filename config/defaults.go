// =============================================================================
// 📦 chatdigest 默认配置
// =============================================================================
// 提供所有配置项的合理默认值。压缩与摘要相关的默认值取自各组件自身的
// DefaultConfig，避免两处维护。
// =============================================================================
package config

import (
	"time"

	"github.com/IshaanRSharma/chatdigest/internal/cache"
	"github.com/IshaanRSharma/chatdigest/llm/circuitbreaker"
	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Compression: DefaultCompressionConfig(),
		Summarizer:  DefaultSummarizerConfig(),
		Cache:       DefaultCacheConfig(),
		Models:      ModelsConfig{},
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
		Auth:        AuthConfig{},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    11 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    10 << 20,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultCompressionConfig 返回默认压缩配置
func DefaultCompressionConfig() CompressionConfig {
	c := compress.DefaultConfig()
	return CompressionConfig{
		BudgetFraction:    c.BudgetFraction,
		MaxPasses:         c.MaxPasses,
		Concurrency:       c.Concurrency,
		CallTimeout:       c.CallTimeout,
		Deadline:          c.Deadline,
		MinChunkTokens:    c.MinChunkTokens,
		FailureThreshold:  c.FailureThreshold,
		RestoreCodeBlocks: c.RestoreCodeBlocks,
		MaxRetries:        c.Retry.MaxRetries,
		InitialDelay:      c.Retry.InitialDelay,
		MaxDelay:          c.Retry.MaxDelay,
	}
}

// DefaultSummarizerConfig 返回默认摘要后端配置
func DefaultSummarizerConfig() SummarizerConfig {
	o := summarizer.DefaultOllamaConfig()
	a := summarizer.DefaultAnthropicConfig()
	b := circuitbreaker.DefaultConfig()
	return SummarizerConfig{
		Backend:             summarizer.BackendOllama,
		BreakerThreshold:    b.Threshold,
		BreakerResetTimeout: b.ResetTimeout,
		Ollama: OllamaConfig{
			BaseURL:     o.BaseURL,
			Model:       o.Model,
			Temperature: o.Temperature,
			TopP:        o.TopP,
			NumPredict:  o.NumPredict,
			Timeout:     o.Timeout,
			InputLimit:  o.InputLimit,
		},
		Anthropic: AnthropicConfig{
			BaseURL:    a.BaseURL,
			Model:      a.Model,
			MaxTokens:  a.MaxTokens,
			Timeout:    a.Timeout,
			InputLimit: a.InputLimit,
		},
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	c := cache.DefaultConfig()
	return CacheConfig{
		Enabled:   false,
		Addr:      c.Addr,
		KeyPrefix: c.KeyPrefix,
		TTL:       c.DefaultTTL,
		PoolSize:  c.PoolSize,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "chatdigest",
		SampleRate:   0.1,
	}
}
