package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/IshaanRSharma/chatdigest/internal/tlsutil"
	"github.com/IshaanRSharma/chatdigest/types"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicConfig 配置 Anthropic Messages API 摘要后端。
type AnthropicConfig struct {
	APIKey     string        `yaml:"api_key" json:"-"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	Model      string        `yaml:"model" json:"model"`
	MaxTokens  int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	InputLimit int           `yaml:"input_limit" json:"input_limit"`
}

// DefaultAnthropicConfig returns the settings used for chunk summaries.
func DefaultAnthropicConfig() AnthropicConfig {
	return AnthropicConfig{
		Model:      "claude-3-5-haiku-latest",
		MaxTokens:  2048,
		Timeout:    120 * time.Second,
		InputLimit: 16000,
	}
}

// AnthropicSummarizer 使用 Messages API，指令作为 system prompt。
type AnthropicSummarizer struct {
	cfg    AnthropicConfig
	client anthropic.Client
	logger *zap.Logger
}

// NewAnthropicSummarizer creates an Anthropic backend.
// SDK 自带的重试被关闭，重试由编排器统一负责。
func NewAnthropicSummarizer(cfg AnthropicConfig, logger *zap.Logger) *AnthropicSummarizer {
	def := DefaultAnthropicConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.InputLimit <= 0 {
		cfg.InputLimit = def.InputLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(tlsutil.HTTPClient(tlsutil.ClientConfig{Timeout: cfg.Timeout})),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicSummarizer{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		logger: logger.With(zap.String("component", "anthropic_summarizer")),
	}
}

// Info implements Describer.
func (s *AnthropicSummarizer) Info() Info {
	return Info{Backend: "anthropic", Model: s.cfg.Model, InputLimit: s.cfg.InputLimit}
}

// Summarize implements Summarizer.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, chunkText, instructions string) (string, error) {
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.cfg.Model),
		MaxTokens: int64(s.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: instructions},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(chunkText)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", upstreamError("anthropic", apiErr.StatusCode, "").WithCause(err)
		}
		return "", types.NewError(types.ErrUpstreamError, "anthropic request failed").
			WithCause(err).
			WithRetryable(ctx.Err() == nil).
			WithBackend("anthropic")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptySummary
	}

	s.logger.Debug("chunk summarized",
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens))
	return text, nil
}
