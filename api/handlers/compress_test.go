package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IshaanRSharma/chatdigest/api"
	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"github.com/IshaanRSharma/chatdigest/testutil"
	"github.com/IshaanRSharma/chatdigest/testutil/fixtures"
	"github.com/IshaanRSharma/chatdigest/testutil/mocks"
	"github.com/IshaanRSharma/chatdigest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

func testCompressor(t testing.TB, s summarizer.Summarizer) *compress.Compressor {
	t.Helper()
	cfg := compress.DefaultConfig()
	cfg.Retry = testutil.FastRetry(0)
	return compress.New(testutil.OfflineAccountant(t), s, cfg, compress.Deps{Logger: zap.NewNop()})
}

func postJSON(t testing.TB, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

// =============================================================================
// 🧪 CompressHandler 测试
// =============================================================================

func TestCompressHandler_PassThroughReturnsOriginal(t *testing.T) {
	mock := mocks.NewMockSummarizer()
	h := NewCompressHandler(testCompressor(t, mock), mock, zap.NewNop())
	content := "User: how do I rotate the API key?\n\nAssistant: Use the admin console."

	w := postJSON(t, h.HandleCompress, "/api/v1/compress", api.CompressRequest{
		ChatContent: content,
		TargetLLM:   "test-8k",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.CompressResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.Equal(t, content, resp.CompressedContent)
	assert.Zero(t, resp.Passes)
	assert.Equal(t, resp.OriginalTokens, resp.CompressedTokens)
	assert.Equal(t, 4000, resp.BudgetTokens)
	assert.Equal(t, 0.0, resp.ReductionPercentage)
	assert.False(t, resp.OverBudget)
	assert.Equal(t, "labeled", resp.FormatDetected)
	assert.Equal(t, "mock", resp.SummarizerBackend)
	assert.NotEmpty(t, resp.RunID)
	assert.Empty(t, resp.ContinuationPrompt)
	assert.Zero(t, mock.CallCount())
}

func TestCompressHandler_CompressesLongTranscript(t *testing.T) {
	mock := mocks.NewMockSummarizer().WithRatio(0.4).WithInputLimit(1000)
	h := NewCompressHandler(testCompressor(t, mock), mock, zap.NewNop())

	w := postJSON(t, h.HandleCompress, "/api/v1/compress", api.CompressRequest{
		ChatContent:   fixtures.LabeledTranscript(40, 1000),
		TargetLLM:     "test-8k",
		IncludePrompt: true,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.CompressResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.GreaterOrEqual(t, resp.OriginalTokens, 10000)
	assert.LessOrEqual(t, resp.CompressedTokens, resp.BudgetTokens)
	assert.GreaterOrEqual(t, resp.Passes, 1)
	assert.False(t, resp.OverBudget)
	assert.False(t, resp.Exact)
	assert.GreaterOrEqual(t, resp.ReductionPercentage, 60.0)
	assert.Contains(t, resp.ContinuationPrompt, "# Previous Conversation Summary")
	assert.Contains(t, resp.ContinuationPrompt, resp.CompressedContent)
	assert.Positive(t, mock.CallCount())
}

func TestCompressHandler_MaxTokensOverridesBudget(t *testing.T) {
	mock := mocks.NewMockSummarizer()
	h := NewCompressHandler(testCompressor(t, mock), mock, zap.NewNop())

	w := postJSON(t, h.HandleCompress, "/api/v1/compress", api.CompressRequest{
		ChatContent:    "User: short question",
		TargetLLM:      "test-8k",
		BudgetFraction: 0.9,
		MaxTokens:      1500,
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.CompressResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1500, resp.BudgetTokens)
}

func TestCompressHandler_FailureReturnsOriginalContent(t *testing.T) {
	mock := mocks.NewMockSummarizer().WithError(errors.New("ollama unreachable")).WithInputLimit(1000)
	h := NewCompressHandler(testCompressor(t, mock), mock, zap.NewNop())
	content := fixtures.LabeledTranscript(20, 1000)

	w := postJSON(t, h.HandleCompress, "/api/compress-context", api.CompressRequest{
		ChatContent: content,
		TargetLLM:   "test-8k",
	})

	require.Equal(t, http.StatusBadGateway, w.Code)
	var resp api.CompressionFailedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "COMPRESSION_FAILED", resp.Error)
	assert.Equal(t, content, resp.OriginalContent)
	assert.Positive(t, resp.TotalChunks)
	assert.Equal(t, resp.TotalChunks, resp.FailedChunks)
}

func TestCompressHandler_Validation(t *testing.T) {
	h := NewCompressHandler(testCompressor(t, summarizer.Identity), summarizer.Identity, zap.NewNop())

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing content", `{"target_llm":"gpt-4o"}`, http.StatusBadRequest},
		{"blank content", `{"chat_content":"   ","target_llm":"gpt-4o"}`, http.StatusBadRequest},
		{"missing model", `{"chat_content":"User: hi"}`, http.StatusBadRequest},
		{"fraction above one", `{"chat_content":"User: hi","target_llm":"gpt-4o","budget_fraction":1.5}`, http.StatusBadRequest},
		{"negative max tokens", `{"chat_content":"User: hi","target_llm":"gpt-4o","max_tokens":-1}`, http.StatusBadRequest},
		{"unknown format", `{"chat_content":"User: hi","target_llm":"gpt-4o","format":"xml"}`, http.StatusBadRequest},
		{"unknown field", `{"chat_content":"User: hi","target_llm":"gpt-4o","extra":true}`, http.StatusBadRequest},
		{"malformed json", `{"chat_content":`, http.StatusBadRequest},
		{"explicit json format that is not json", `{"chat_content":"User: hi","target_llm":"gpt-4o","format":"json"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/compress", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			h.HandleCompress(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
		})
	}
}

func TestCompressHandler_ExplicitFormatParseError(t *testing.T) {
	h := NewCompressHandler(testCompressor(t, summarizer.Identity), summarizer.Identity, zap.NewNop())

	w := postJSON(t, h.HandleCompress, "/api/v1/compress", api.CompressRequest{
		ChatContent: "User: hi",
		TargetLLM:   "gpt-4o",
		Format:      "json",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrParseFailed), resp.Error.Code)
}

func TestCompressHandler_RequiresJSONContentType(t *testing.T) {
	h := NewCompressHandler(testCompressor(t, summarizer.Identity), summarizer.Identity, zap.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/compress", strings.NewReader("User: hi"))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	h.HandleCompress(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
