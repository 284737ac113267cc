package handlers

import (
	"net/http"

	"github.com/IshaanRSharma/chatdigest/api"
	"github.com/IshaanRSharma/chatdigest/llm/compress"
	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
	"go.uber.org/zap"
)

// =============================================================================
// 🤖 模型列表 Handler
// =============================================================================

// ModelsHandler 目标模型列表处理器
type ModelsHandler struct {
	compressor *compress.Compressor
	logger     *zap.Logger
}

// NewModelsHandler 创建模型列表处理器
func NewModelsHandler(compressor *compress.Compressor, logger *zap.Logger) *ModelsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelsHandler{
		compressor: compressor,
		logger:     logger.With(zap.String("handler", "models")),
	}
}

// Models 返回模型表中的所有模型，附带默认预算。
func (h *ModelsHandler) Models() []api.ModelInfo {
	profiles := h.compressor.Accountant().Models()
	out := make([]api.ModelInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ModelInfoFrom(p, h.compressor.Budget(p.ID)))
	}
	return out
}

// HandleList 处理 /api/v1/models，使用统一响应信封
// @Summary 模型列表
// @Tags 模型
// @Produce json
// @Success 200 {object} Response{data=[]api.ModelInfo} "模型列表"
// @Router /api/v1/models [get]
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.Models())
}

// HandleLLMTypes 处理 /api/llm-types，返回旧客户端期望的 {"llm_types": [...]}
// @Summary 模型列表（兼容）
// @Tags 模型
// @Produce json
// @Success 200 {object} api.LLMTypesResponse "模型列表"
// @Router /api/llm-types [get]
func (h *ModelsHandler) HandleLLMTypes(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.LLMTypesResponse{LLMTypes: h.Models()})
}

// ModelInfoFrom converts a model profile into its API form.
func ModelInfoFrom(p tokenizer.ModelProfile, budget int) api.ModelInfo {
	name := p.DisplayName
	if name == "" {
		name = p.ID
	}
	return api.ModelInfo{
		ID:           p.ID,
		Name:         name,
		Vendor:       p.Vendor,
		TokenLimit:   p.TokenLimit,
		Format:       string(p.Family),
		Recommended:  p.Recommended,
		BudgetTokens: budget,
	}
}
