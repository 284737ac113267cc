package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/IshaanRSharma/chatdigest/api"
	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/summarizer"
	"github.com/IshaanRSharma/chatdigest/transcript"
	"github.com/IshaanRSharma/chatdigest/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🗜️ 压缩接口 Handler
// =============================================================================

// CompressHandler 对话压缩处理器
type CompressHandler struct {
	compressor *compress.Compressor
	backend    string
	logger     *zap.Logger
}

// NewCompressHandler 创建压缩处理器；s 仅用于在响应中报告摘要后端。
func NewCompressHandler(compressor *compress.Compressor, s summarizer.Summarizer, logger *zap.Logger) *CompressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompressHandler{
		compressor: compressor,
		backend:    summarizer.Describe(s).Backend,
		logger:     logger.With(zap.String("handler", "compress")),
	}
}

// HandleCompress 处理压缩请求
// @Summary 压缩对话
// @Description 把对话压缩到目标模型上下文窗口的预算内
// @Tags 压缩
// @Accept json
// @Produce json
// @Param request body api.CompressRequest true "压缩请求"
// @Success 200 {object} api.CompressResponse "压缩结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} api.CompressionFailedResponse "摘要失败，携带原文"
// @Security ApiKeyAuth
// @Router /api/v1/compress [post]
func (h *CompressHandler) HandleCompress(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.CompressRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := ValidateCompressRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	parsed, err := transcript.ParseAs(req.ChatContent, transcript.Format(req.Format))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	start := time.Now()
	res, err := h.compressor.Compress(r.Context(), parsed.Transcript, req.TargetLLM, CompressOptions(&req)...)
	if err != nil {
		h.writeCompressError(w, req.ChatContent, err)
		return
	}

	resp := CompressResponseFrom(&req, parsed, res, h.backend)
	h.logger.Info("compression completed",
		zap.String("run_id", res.RunID),
		zap.String("target_llm", req.TargetLLM),
		zap.String("format", string(parsed.Format)),
		zap.Int("original_tokens", res.OriginalTokens),
		zap.Int("compressed_tokens", res.CompressedTokens),
		zap.Int("passes", res.Passes),
		zap.Bool("over_budget", res.OverBudget),
		zap.Duration("duration", time.Since(start)),
	)

	WriteJSON(w, http.StatusOK, resp)
}

// ValidateCompressRequest 验证压缩请求，并去掉 target_llm 两端空白
func ValidateCompressRequest(req *api.CompressRequest) *types.Error {
	req.TargetLLM = strings.TrimSpace(req.TargetLLM)
	switch {
	case strings.TrimSpace(req.ChatContent) == "":
		return types.NewError(types.ErrInvalidRequest, "chat_content is required").WithHTTPStatus(http.StatusBadRequest)
	case req.TargetLLM == "":
		return types.NewError(types.ErrInvalidRequest, "target_llm is required").WithHTTPStatus(http.StatusBadRequest)
	case req.BudgetFraction < 0 || req.BudgetFraction > 1:
		return types.NewError(types.ErrInvalidRequest, "budget_fraction must be in (0, 1]").WithHTTPStatus(http.StatusBadRequest)
	case req.MaxTokens < 0:
		return types.NewError(types.ErrInvalidRequest, "max_tokens must be positive").WithHTTPStatus(http.StatusBadRequest)
	case req.Format != "" && !transcript.Format(req.Format).Valid():
		return types.NewError(types.ErrInvalidRequest, "unsupported format "+req.Format).WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

// CompressOptions 把请求里的预算覆盖转换为编排器选项
func CompressOptions(req *api.CompressRequest) []compress.Option {
	var opts []compress.Option
	if req.BudgetFraction > 0 {
		opts = append(opts, compress.WithBudgetFraction(req.BudgetFraction))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, compress.WithBudgetTokens(req.MaxTokens))
	}
	return opts
}

// CompressResponseFrom 组装压缩响应
func CompressResponseFrom(req *api.CompressRequest, parsed transcript.Parsed, res *compress.Result, backend string) api.CompressResponse {
	content := res.Content
	// 直通时返回调用方的原文，而不是解析后重新序列化的文本
	if res.PassThrough() {
		content = req.ChatContent
	}
	resp := api.CompressResponse{
		RunID:               res.RunID,
		TargetLLM:           req.TargetLLM,
		CompressedContent:   content,
		OriginalTokens:      res.OriginalTokens,
		CompressedTokens:    res.CompressedTokens,
		BudgetTokens:        res.BudgetTokens,
		ReductionPercentage: res.ReductionPercentage,
		OverBudget:          res.OverBudget,
		Passes:              res.Passes,
		FailedChunks:        res.FailedChunks,
		Exact:               res.Exact,
		FormatDetected:      string(parsed.Format),
		SummarizerBackend:   backend,
	}
	if req.IncludePrompt {
		resp.ContinuationPrompt = compress.ContinuationPrompt(content, req.TargetLLM)
	}
	return resp
}

// writeCompressError 压缩失败时返回扁平的 COMPRESSION_FAILED 载荷，其余错误走统一信封。
func (h *CompressHandler) writeCompressError(w http.ResponseWriter, original string, err error) {
	var cfe *compress.CompressionFailedError
	if !errors.As(err, &cfe) {
		WriteAnyError(w, err, h.logger)
		return
	}

	status := http.StatusBadGateway
	if cfe.Err != nil && cfe.Err.HTTPStatus != 0 {
		status = cfe.Err.HTTPStatus
	}
	h.logger.Warn("compression failed, returning original content",
		zap.Int("failed_chunks", cfe.FailedChunks),
		zap.Int("total_chunks", cfe.TotalChunks),
		zap.Error(cfe.Err),
	)

	resp := CompressionFailedResponseFrom(cfe, original)
	resp.RequestID = w.Header().Get("X-Request-ID")
	WriteJSON(w, status, resp)
}

// CompressionFailedResponseFrom 组装携带原文的失败载荷
func CompressionFailedResponseFrom(cfe *compress.CompressionFailedError, original string) api.CompressionFailedResponse {
	return api.CompressionFailedResponse{
		Error:           string(types.ErrCompressionFailed),
		Message:         cfe.Error(),
		OriginalContent: original,
		FailedChunks:    cfe.FailedChunks,
		TotalChunks:     cfe.TotalChunks,
	}
}
