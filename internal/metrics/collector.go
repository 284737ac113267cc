package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 压缩指标
	compressionsTotal   *prometheus.CounterVec
	compressionDuration *prometheus.HistogramVec
	compressionTokens   *prometheus.CounterVec
	compressionPasses   *prometheus.HistogramVec
	truncationsTotal    *prometheus.CounterVec

	// 摘要器指标
	summarizationsTotal   *prometheus.CounterVec
	summarizationDuration *prometheus.HistogramVec
	breakerState          *prometheus.GaugeVec

	// 分词器指标
	tokenizerFallbacks *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 在默认 Registry 上创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 在指定 Registerer 上创建指标收集器
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 压缩指标
	c.compressionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compressions_total",
			Help:      "Total number of compression requests by outcome",
		},
		[]string{"model", "outcome"},
	)

	// 多轮摘要可能耗时数分钟
	c.compressionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_duration_seconds",
			Help:      "Compression duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"model"},
	)

	c.compressionTokens = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_tokens_total",
			Help:      "Tokens seen before and after compression",
		},
		[]string{"model", "kind"}, // kind: original, compressed
	)

	c.compressionPasses = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_passes",
			Help:      "Summarization passes per compression",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"model"},
	)

	c.truncationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_truncations_total",
			Help:      "Chunks replaced by truncation after summarization failed",
		},
		[]string{"model"},
	)

	// 摘要器指标
	c.summarizationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizer_calls_total",
			Help:      "Total number of summarizer calls",
		},
		[]string{"backend", "status"},
	)

	c.summarizationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summarizer_call_duration_seconds",
			Help:      "Summarizer call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	c.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "summarizer_circuit_state",
			Help:      "Summarizer circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"backend"},
	)

	// 分词器指标
	c.tokenizerFallbacks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokenizer_fallbacks_total",
			Help:      "Times a tokenizer family fell back to the heuristic estimator",
		},
		[]string{"family", "reason"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if requestSize > 0 {
		c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🗜️ 压缩指标记录
// =============================================================================

// RecordCompression 记录一次压缩请求的结果
func (c *Collector) RecordCompression(model, outcome string, duration time.Duration, originalTokens, compressedTokens, passes int) {
	c.compressionsTotal.WithLabelValues(model, outcome).Inc()
	c.compressionDuration.WithLabelValues(model).Observe(duration.Seconds())
	c.compressionTokens.WithLabelValues(model, "original").Add(float64(max(originalTokens, 0)))
	c.compressionTokens.WithLabelValues(model, "compressed").Add(float64(max(compressedTokens, 0)))
	c.compressionPasses.WithLabelValues(model).Observe(float64(passes))
}

// RecordTruncation 记录一次截断降级
func (c *Collector) RecordTruncation(model string) {
	c.truncationsTotal.WithLabelValues(model).Inc()
}

// =============================================================================
// 🤖 摘要器与分词器指标记录
// =============================================================================

// RecordSummarization 记录一次摘要调用
func (c *Collector) RecordSummarization(backend, status string, duration time.Duration) {
	c.summarizationsTotal.WithLabelValues(backend, status).Inc()
	c.summarizationDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordBreakerState 记录摘要后端熔断器状态
func (c *Collector) RecordBreakerState(backend string, state int) {
	c.breakerState.WithLabelValues(backend).Set(float64(state))
	c.logger.Debug("circuit state recorded",
		zap.String("backend", backend),
		zap.Int("state", state))
}

// RecordTokenizerFallback 记录分词器退化为估算
func (c *Collector) RecordTokenizerFallback(family, reason string) {
	c.tokenizerFallbacks.WithLabelValues(family, reason).Inc()
	c.logger.Debug("tokenizer fallback recorded",
		zap.String("family", family),
		zap.String("reason", reason))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
