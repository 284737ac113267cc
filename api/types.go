package api

import (
	"time"

	"github.com/IshaanRSharma/chatdigest/types"
)

// =============================================================================
// 🗜️ Compression Types
// =============================================================================

// CompressRequest represents a compression request.
// @Description 对话压缩请求
type CompressRequest struct {
	// ChatContent 是原始对话文本（任意支持的导出格式）
	ChatContent string `json:"chat_content" binding:"required" example:"User: hi\n\nAssistant: hello"`
	// TargetLLM 是下一段对话要使用的模型 ID
	TargetLLM string `json:"target_llm" binding:"required" example:"gpt-4o"`
	// BudgetFraction 覆盖预算比例，(0,1]
	BudgetFraction float64 `json:"budget_fraction,omitempty" example:"0.5"`
	// MaxTokens 直接指定预算 token 数，优先于 BudgetFraction
	MaxTokens int `json:"max_tokens,omitempty" example:"4000"`
	// IncludePrompt 为 true 时额外返回继续对话的提示词
	IncludePrompt bool `json:"include_prompt,omitempty"`
	// Format 强制指定输入格式，为空时自动识别
	Format string `json:"format,omitempty" example:"labeled"`
	// PreserveCode 与 IncludeSystemPrompts 兼容旧客户端，压缩总是保留代码块和系统消息
	PreserveCode         *bool `json:"preserve_code,omitempty"`
	IncludeSystemPrompts *bool `json:"include_system_prompts,omitempty"`
}

// CompressResponse represents a successful compression.
// @Description 对话压缩结果
type CompressResponse struct {
	RunID               string  `json:"run_id"`
	TargetLLM           string  `json:"target_llm"`
	CompressedContent   string  `json:"compressed_content"`
	OriginalTokens      int     `json:"original_tokens"`
	CompressedTokens    int     `json:"compressed_tokens"`
	BudgetTokens        int     `json:"budget_tokens"`
	ReductionPercentage float64 `json:"reduction_percentage"`
	OverBudget          bool    `json:"over_budget"`
	Passes              int     `json:"passes"`
	FailedChunks        int     `json:"failed_chunks"`
	Exact               bool    `json:"exact"`
	FormatDetected      string  `json:"format_detected"`
	SummarizerBackend   string  `json:"summarizer_backend,omitempty"`
	ContinuationPrompt  string  `json:"continuation_prompt,omitempty"`
}

// CompressionFailedResponse 在过多块摘要失败时返回，携带原文以便客户端回退。
type CompressionFailedResponse struct {
	Error           string `json:"error" example:"COMPRESSION_FAILED"`
	Message         string `json:"message"`
	OriginalContent string `json:"original_content"`
	FailedChunks    int    `json:"failed_chunks"`
	TotalChunks     int    `json:"total_chunks"`
	RequestID       string `json:"request_id,omitempty"`
}

// =============================================================================
// 📄 Parse Types
// =============================================================================

// ParseRequest represents a transcript parse request.
type ParseRequest struct {
	Content string `json:"content" binding:"required"`
	Format  string `json:"format,omitempty"`
	// TargetLLM 决定 token_count 使用的分词器，为空时使用默认族
	TargetLLM string `json:"target_llm,omitempty"`
	// Filename 仅用于下载接口的附件名
	Filename string `json:"filename,omitempty"`
}

// ParseResponse represents a parsed transcript.
type ParseResponse struct {
	Content        string    `json:"content"`
	Messages       []Message `json:"messages"`
	MessageCount   int       `json:"message_count"`
	TokenCount     int       `json:"token_count"`
	Exact          bool      `json:"exact"`
	FormatDetected string    `json:"format_detected"`
	Filename       string    `json:"filename,omitempty"`
}

// Message represents one parsed conversation turn.
type Message struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content"`
	Ordinal int    `json:"ordinal"`
}

// MessagesFromTranscript converts a transcript into API messages.
func MessagesFromTranscript(t types.Transcript) []Message {
	out := make([]Message, len(t))
	for i, m := range t {
		out[i] = Message{Role: string(m.Role), Content: m.Content, Ordinal: m.Ordinal}
	}
	return out
}

// =============================================================================
// 🤖 Model Types
// =============================================================================

// ModelInfo describes one supported target model.
type ModelInfo struct {
	ID          string `json:"id" example:"gpt-4o"`
	Name        string `json:"name" example:"GPT-4o"`
	Vendor      string `json:"vendor,omitempty" example:"openai"`
	TokenLimit  int    `json:"token_limit" example:"128000"`
	Format      string `json:"format" example:"o200k_base"`
	Recommended bool   `json:"recommended"`
	// BudgetTokens 是默认预算比例下的压缩预算
	BudgetTokens int `json:"budget_tokens"`
}

// LLMTypesResponse 保持旧客户端使用的 llm_types 字段名。
type LLMTypesResponse struct {
	LLMTypes []ModelInfo `json:"llm_types"`
}

// =============================================================================
// 🏥 Service Types
// =============================================================================

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string    `json:"version"`
	GoVersion string    `json:"go_version"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}
