package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func newTestCollector() *Collector {
	return NewCollectorWith(prometheus.NewRegistry(), nextTestNamespace(), zap.NewNop())
}

// 编译期校验 Collector 实现各组件的记录接口
var (
	_ compress.Recorder          = (*Collector)(nil)
	_ summarizer.Recorder        = (*Collector)(nil)
	_ summarizer.CacheRecorder   = (*Collector)(nil)
	_ summarizer.BreakerRecorder = (*Collector)(nil)
	_ tokenizer.FallbackRecorder = (*Collector)(nil)
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.compressionsTotal)
	assert.NotNil(t, collector.summarizationsTotal)
	assert.NotNil(t, collector.tokenizerFallbacks)
}

func TestNewCollectorWith_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollectorWith(prometheus.NewRegistry(), "nil_logger", nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := newTestCollector()

	collector.RecordHTTPRequest("POST", "/api/v1/compress", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/api/v1/compress", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/api/v1/compress", 502, 50*time.Millisecond, 512, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/compress", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/compress", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_RecordCompression(t *testing.T) {
	collector := newTestCollector()

	collector.RecordCompression("gpt-4o", compress.OutcomeCompressed, 2*time.Second, 10000, 3800, 2)
	collector.RecordCompression("gpt-4o", compress.OutcomePassThrough, time.Millisecond, 50, 50, 0)
	collector.RecordTruncation("gpt-4o")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.compressionsTotal.WithLabelValues("gpt-4o", compress.OutcomeCompressed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.compressionsTotal.WithLabelValues("gpt-4o", compress.OutcomePassThrough)))
	assert.Equal(t, 10050.0, testutil.ToFloat64(collector.compressionTokens.WithLabelValues("gpt-4o", "original")))
	assert.Equal(t, 3850.0, testutil.ToFloat64(collector.compressionTokens.WithLabelValues("gpt-4o", "compressed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.truncationsTotal.WithLabelValues("gpt-4o")))
}

func TestCollector_RecordSummarization(t *testing.T) {
	collector := newTestCollector()

	collector.RecordSummarization("ollama", "success", 3*time.Second)
	collector.RecordSummarization("ollama", "error", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.summarizationsTotal.WithLabelValues("ollama", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.summarizationsTotal.WithLabelValues("ollama", "error")))
}

func TestCollector_RecordBreakerState(t *testing.T) {
	collector := newTestCollector()

	collector.RecordBreakerState("ollama", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.breakerState.WithLabelValues("ollama")))

	collector.RecordBreakerState("ollama", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.breakerState.WithLabelValues("ollama")))
}

func TestCollector_RecordTokenizerFallback(t *testing.T) {
	collector := newTestCollector()

	collector.RecordTokenizerFallback("cl100k_base", "load_failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tokenizerFallbacks.WithLabelValues("cl100k_base", "load_failed")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := newTestCollector()

	collector.RecordCacheHit("summary")
	collector.RecordCacheMiss("summary")
	collector.RecordCacheMiss("summary")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("summary")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("summary")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := newTestCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 0, 32)
			collector.RecordCompression("claude-3-5-sonnet", compress.OutcomeCompressed, time.Second, 100, 40, 1)
			collector.RecordCacheHit("summary")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.compressionsTotal.WithLabelValues("claude-3-5-sonnet", compress.OutcomeCompressed)))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("summary")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	ns := nextTestNamespace()
	collector := NewCollectorWith(registry, ns, zap.NewNop())

	collector.RecordCompression("gpt-4", compress.OutcomeOverBudget, time.Second, 9000, 5000, 3)

	expected := fmt.Sprintf(`
# HELP %[1]s_compressions_total Total number of compression requests by outcome
# TYPE %[1]s_compressions_total counter
%[1]s_compressions_total{model="gpt-4",outcome="over_budget"} 1
`, ns)
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected), ns+"_compressions_total")
	require.NoError(t, err)

	// 同一 Registerer 上重复创建会冲突
	assert.Panics(t, func() { NewCollectorWith(registry, ns, zap.NewNop()) })
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{502, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
